package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pixeltruth/analysis"
	"pixeltruth/models"
)

// AnalysisService stores analysis results, previews and the API audit log
type AnalysisService struct {
	db *sql.DB
}

// NewAnalysisService creates a new analysis store
func NewAnalysisService(db *sql.DB) *AnalysisService {
	return &AnalysisService{db: db}
}

// Ping checks the database connection
func (s *AnalysisService) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveAnalysis persists rec and returns it with its ID set. The result is
// stored as JSON next to the columns history listings need.
func (s *AnalysisService) SaveAnalysis(ctx context.Context, rec *models.AnalysisRecord) (*models.AnalysisRecord, error) {
	if rec.Result == nil {
		return nil, errors.New("analysis result is required")
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var preview any
	if len(rec.Preview) > 0 {
		preview = rec.Preview
	}
	rec.HasPreview = preview != nil

	res := rec.Result
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO image_analyses
		(id, user_id, filename, file_hash, file_size, prediction, confidence, is_mock, processing_time, model_version, result_json, preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Filename, rec.FileHash, rec.FileSize,
		string(res.Prediction), res.Confidence, res.Mock, res.ProcessingTime, res.ModelVersion,
		string(resultJSON), preview)
	if err != nil {
		return nil, fmt.Errorf("failed to insert analysis: %w", err)
	}
	return rec, nil
}

// GetAnalysis loads one of the user's analyses without its preview
func (s *AnalysisService) GetAnalysis(ctx context.Context, userID, id string) (*models.AnalysisRecord, error) {
	rec := &models.AnalysisRecord{ID: id, UserID: userID}
	var resultJSON []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT filename, file_hash, file_size, result_json, preview IS NOT NULL, created_at
		FROM image_analyses WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&rec.Filename, &rec.FileHash, &rec.FileSize, &resultJSON, &rec.HasPreview, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	rec.Result = &analysis.Result{}
	if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
	}
	return rec, nil
}

// GetPreview returns the stored JPEG preview of an analysis
func (s *AnalysisService) GetPreview(ctx context.Context, userID, id string) ([]byte, error) {
	var preview []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT preview FROM image_analyses WHERE id = ? AND user_id = ?",
		id, userID).Scan(&preview)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to query preview: %w", err)
	}
	if len(preview) == 0 {
		return nil, ErrAnalysisNotFound
	}
	return preview, nil
}

// ListAnalyses returns one page of the user's analyses, newest first, and
// the total count
func (s *AnalysisService) ListAnalyses(ctx context.Context, userID string, page, pageSize int) ([]models.HistoryItem, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM image_analyses WHERE user_id = ?", userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, prediction, confidence, processing_time, is_mock, preview IS NOT NULL, created_at
		FROM image_analyses WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	items := []models.HistoryItem{}
	for rows.Next() {
		var item models.HistoryItem
		if err := rows.Scan(&item.AnalysisID, &item.Filename, &item.Prediction, &item.ConfidenceScore,
			&item.ProcessingTime, &item.IsMock, &item.HasPreview, &item.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read analyses: %w", err)
	}
	return items, total, nil
}

// DeleteAnalysis removes one of the user's analyses
func (s *AnalysisService) DeleteAnalysis(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM image_analyses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

// Stats counts the user's analyses per prediction
func (s *AnalysisService) Stats(ctx context.Context, userID string) (*models.StatsResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prediction, COUNT(*), COALESCE(SUM(confidence), 0)
		FROM image_analyses WHERE user_id = ? GROUP BY prediction`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := &models.StatsResponse{ByPrediction: map[string]int{}}
	var confidenceSum float64
	for rows.Next() {
		var prediction string
		var count int
		var sum float64
		if err := rows.Scan(&prediction, &count, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.ByPrediction[prediction] = count
		stats.Total += count
		confidenceSum += sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	if stats.Total > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.Total)
	}
	return stats, nil
}

// LogAPICall writes one audit row
func (s *AnalysisService) LogAPICall(ctx context.Context, entry models.APILog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_logs (user_id, endpoint, method, status_code, processing_time, file_size, prediction, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(entry.UserID), entry.Endpoint, entry.Method, entry.StatusCode,
		entry.ProcessingTime, entry.FileSize, nullString(entry.Prediction), nullString(entry.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to insert api log: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
