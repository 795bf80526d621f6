package handlers

import (
	"context"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pixeltruth/analysis"
	"pixeltruth/classifier"
	"pixeltruth/models"
)

const serviceName = "pixeltruth"

// AuthStore is the user and token store
type AuthStore interface {
	CreateUser(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
	InvalidateToken(ctx context.Context, userID, token string) error
	IncrementAnalysisCount(ctx context.Context, userID string) error
}

// AnalysisStore persists analyses and the API audit log
type AnalysisStore interface {
	Ping(ctx context.Context) error
	SaveAnalysis(ctx context.Context, rec *models.AnalysisRecord) (*models.AnalysisRecord, error)
	GetAnalysis(ctx context.Context, userID, id string) (*models.AnalysisRecord, error)
	GetPreview(ctx context.Context, userID, id string) ([]byte, error)
	ListAnalyses(ctx context.Context, userID string, page, pageSize int) ([]models.HistoryItem, int, error)
	DeleteAnalysis(ctx context.Context, userID, id string) error
	Stats(ctx context.Context, userID string) (*models.StatsResponse, error)
	LogAPICall(ctx context.Context, entry models.APILog) error
}

// FileStore holds uploaded images
type FileStore interface {
	MaxSize() int64
	SaveMultipart(fh *multipart.FileHeader) (*models.StoredFile, error)
	Open(name string) (*models.StoredFile, error)
	Remove(file *models.StoredFile)
}

// Analyzer runs the analysis pipeline on a stored image
type Analyzer interface {
	Analyze(ctx context.Context, path, filename string) *analysis.Result
}

// ClassifierStatus reports the classifier health string
type ClassifierStatus interface {
	Status() string
}

// EventPublisher sends analysis events to the message broker
type EventPublisher interface {
	Publish(message interface{}) error
}

// Deps are the collaborators of Handlers. Publisher may be nil.
type Deps struct {
	Auth          AuthStore
	Analyses      AnalysisStore
	Files         FileStore
	Pipeline      Analyzer
	Classifier    ClassifierStatus
	Publisher     EventPublisher
	ModelVersion  string
	StorePreviews bool
}

// Handlers handles HTTP requests for the analysis service
type Handlers struct {
	Deps
	now func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{Deps: deps, now: time.Now}
}

// HealthCheck reports classifier and database state. The service answers
// 200 while degraded so that a missing model does not take it out of
// rotation; a failed database ping answers 503.
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := models.HealthResponse{
		Status:       "healthy",
		Service:      serviceName,
		Classifier:   h.Classifier.Status(),
		ModelVersion: h.ModelVersion,
		Database:     "connected",
		Time:         h.now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Analyses.Ping(ctx); err != nil {
		log.WithError(err).Warn("Database ping failed")
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		code = http.StatusServiceUnavailable
	} else if resp.Classifier != classifier.StatusLoaded {
		resp.Status = "degraded"
	}

	c.JSON(code, resp)
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return "", false
	}
	return id, true
}
