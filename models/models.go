package models

import (
	"time"

	"pixeltruth/analysis"
)

// User plans
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// User represents an account
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	Plan          string    `json:"plan"`
	IsActive      bool      `json:"is_active"`
	AnalysisCount int       `json:"analysis_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RegisterRequest represents the request to create a new user
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=256"`
	Username string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// LoginRequest represents the email/password authentication request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest carries a refresh token. The token may also be sent as
// a Bearer header instead.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse represents the authentication response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StoredFile describes an upload persisted to the upload directory
type StoredFile struct {
	Name         string `json:"filename"`
	OriginalName string `json:"original_name"`
	Path         string `json:"-"`
	Size         int64  `json:"size"`
	Hash         string `json:"file_hash"`
}

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	StoredFile
	Message string `json:"message"`
}

// AnalysisRecord is one persisted analysis
type AnalysisRecord struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Filename   string           `json:"filename"`
	FileHash   string           `json:"file_hash"`
	FileSize   int64            `json:"file_size"`
	Result     *analysis.Result `json:"result"`
	Preview    []byte           `json:"-"`
	HasPreview bool             `json:"has_preview"`
	CreatedAt  time.Time        `json:"created_at"`
}

// AnalysisMetadata groups the supporting evidence of a verdict
type AnalysisMetadata struct {
	ExifAnomalies          analysis.AnomalyFlags    `json:"exif_anomalies"`
	QualityMetrics         *analysis.QualityMetrics `json:"quality_metrics"`
	MetadataSuspicionScore float64                  `json:"metadata_suspicion_score"`
	MLProbabilities        map[string]float64       `json:"ml_probabilities"`
	OriginalConfidence     float64                  `json:"original_confidence"`
	IsMock                 bool                     `json:"is_mock"`
	PerformanceBreakdown   analysis.StageTimings    `json:"performance_breakdown,omitempty"`
	ExifError              string                   `json:"exif_error,omitempty"`
	Error                  string                   `json:"error,omitempty"`
}

// AnalysisResponse is the API view of an analysis
type AnalysisResponse struct {
	AnalysisID      string           `json:"analysis_id"`
	Filename        string           `json:"filename"`
	Prediction      string           `json:"prediction"`
	ConfidenceScore float64          `json:"confidence_score"`
	ProcessingTime  float64          `json:"processing_time"`
	ModelVersion    string           `json:"model_version"`
	Metadata        AnalysisMetadata `json:"metadata"`
	ExifData        analysis.ExifMap `json:"exif_data"`
	HasPreview      bool             `json:"has_preview"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NewAnalysisResponse builds the API view of a stored analysis
func NewAnalysisResponse(rec *AnalysisRecord) AnalysisResponse {
	res := rec.Result
	if res == nil {
		res = &analysis.Result{}
	}

	probs := make(map[string]float64, len(res.Probabilities))
	for label, p := range res.Probabilities {
		probs[string(label)] = p
	}

	meta := AnalysisMetadata{
		IsMock: res.Mock,
		Error:  res.Error,
	}
	if !res.Failed() {
		meta.ExifAnomalies = res.Anomalies
		meta.QualityMetrics = res.Quality
		meta.MetadataSuspicionScore = res.SuspicionScore
		meta.MLProbabilities = probs
		meta.OriginalConfidence = res.OriginalConfidence
		meta.PerformanceBreakdown = res.Timings
		meta.ExifError = res.ExifError
	}

	return AnalysisResponse{
		AnalysisID:      rec.ID,
		Filename:        rec.Filename,
		Prediction:      string(res.Prediction),
		ConfidenceScore: res.Confidence,
		ProcessingTime:  res.ProcessingTime,
		ModelVersion:    res.ModelVersion,
		Metadata:        meta,
		ExifData:        res.Exif,
		HasPreview:      rec.HasPreview,
		CreatedAt:       rec.CreatedAt,
	}
}

// HistoryItem is one row of the analysis history
type HistoryItem struct {
	AnalysisID      string    `json:"analysis_id"`
	Filename        string    `json:"filename"`
	Prediction      string    `json:"prediction"`
	ConfidenceScore float64   `json:"confidence_score"`
	ProcessingTime  float64   `json:"processing_time"`
	IsMock          bool      `json:"is_mock"`
	HasPreview      bool      `json:"has_preview"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryResponse is a page of history items, newest first
type HistoryResponse struct {
	Items      []HistoryItem `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// StatsResponse summarises a user's analyses
type StatsResponse struct {
	Total             int            `json:"total_analyses"`
	ByPrediction      map[string]int `json:"by_prediction"`
	AverageConfidence float64        `json:"average_confidence"`
}

// APILog is one row of the request audit log
type APILog struct {
	UserID         string
	Endpoint       string
	Method         string
	StatusCode     int
	ProcessingTime float64
	FileSize       int64
	Prediction     string
	ErrorMessage   string
}

// AnalysisEvent is published after every completed analysis
type AnalysisEvent struct {
	AnalysisID   string    `json:"analysis_id"`
	UserID       string    `json:"user_id"`
	Filename     string    `json:"filename"`
	FileHash     string    `json:"file_hash"`
	Prediction   string    `json:"prediction"`
	Confidence   float64   `json:"confidence_score"`
	IsMock       bool      `json:"is_mock"`
	ModelVersion string    `json:"model_version"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HealthResponse reports service dependencies
type HealthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	Classifier   string `json:"classifier"`
	ModelVersion string `json:"model_version"`
	Database     string `json:"database"`
	Time         string `json:"time"`
}
