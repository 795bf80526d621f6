package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pixeltruth/imaging"
	"pixeltruth/metrics"
	"pixeltruth/models"
	"pixeltruth/storage"
)

// Upload stores the multipart "image" file for a later Analyze call
func (h *Handlers) Upload(c *gin.Context) {
	if _, ok := userID(c); !ok {
		return
	}

	file, ok := h.receive(c, "image")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, models.UploadResponse{StoredFile: *file, Message: "file uploaded successfully"})
}

// AnalyzeUpload analyses a file previously stored by Upload. The stored file
// is kept so it can be analysed again.
func (h *Handlers) AnalyzeUpload(c *gin.Context) {
	if _, ok := userID(c); !ok {
		return
	}

	name := c.PostForm("filename")
	if name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "filename is required"})
		return
	}

	file, err := h.Files.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "file not found"})
		case errors.Is(err, storage.ErrInvalidName):
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		default:
			log.WithError(err).WithField("filename", name).Error("Failed to open upload")
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to open file"})
		}
		return
	}

	displayName := filepath.Base(c.PostForm("original_name"))
	if displayName == "." || displayName == string(filepath.Separator) {
		displayName = file.Name
	}
	h.analyze(c, file, displayName)
}

// AnalyzeImage analyses the multipart "file" in one call. The upload is
// removed once the analysis is stored.
func (h *Handlers) AnalyzeImage(c *gin.Context) {
	if _, ok := userID(c); !ok {
		return
	}

	file, ok := h.receive(c, "file")
	if !ok {
		return
	}
	defer h.Files.Remove(file)

	h.analyze(c, file, file.OriginalName)
}

// receive stores the multipart field and answers the client itself on error
func (h *Handlers) receive(c *gin.Context, field string) (*models.StoredFile, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("multipart field %q is required", field)})
		return nil, false
	}

	file, err := h.Files.SaveMultipart(fh)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrEmptyFile):
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		case errors.Is(err, storage.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Error: fmt.Sprintf("file too large, max size: %d bytes", h.Files.MaxSize()),
			})
		default:
			log.WithError(err).Error("Failed to store upload")
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "upload failed"})
		}
		return nil, false
	}
	return file, true
}

// analyze runs the pipeline, persists the record and answers the request.
// Pipeline failures are part of a successful response; only storage errors
// fail the request.
func (h *Handlers) analyze(c *gin.Context, file *models.StoredFile, displayName string) {
	start := h.now()
	ctx := c.Request.Context()
	id := c.GetString("user_id")
	logger := log.WithFields(log.Fields{"user_id": id, "filename": displayName})

	res := h.Pipeline.Analyze(ctx, file.Path, displayName)

	rec := &models.AnalysisRecord{
		UserID:    id,
		Filename:  displayName,
		FileHash:  file.Hash,
		FileSize:  file.Size,
		Result:    res,
		CreatedAt: start.UTC(),
	}
	if h.StorePreviews && !res.Failed() {
		rec.Preview = h.preview(file)
	}

	entry := models.APILog{
		UserID:     id,
		Endpoint:   c.FullPath(),
		Method:     c.Request.Method,
		FileSize:   file.Size,
		Prediction: string(res.Prediction),
	}

	saved, err := h.Analyses.SaveAnalysis(ctx, rec)
	if err != nil {
		logger.WithError(err).Error("Failed to save analysis")
		entry.StatusCode = http.StatusInternalServerError
		entry.ErrorMessage = err.Error()
		h.logAPICall(c, entry, start)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save analysis"})
		return
	}

	if err := h.Auth.IncrementAnalysisCount(ctx, id); err != nil {
		logger.WithError(err).Warn("Failed to increment analysis count")
	}

	entry.StatusCode = http.StatusOK
	entry.ErrorMessage = res.Error
	h.logAPICall(c, entry, start)
	h.publish(saved)

	c.JSON(http.StatusOK, models.NewAnalysisResponse(saved))
}

func (h *Handlers) preview(file *models.StoredFile) []byte {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		log.WithError(err).WithField("filename", file.Name).Warn("Failed to read upload for preview")
		return nil
	}
	preview, err := imaging.Preview(data)
	if err != nil {
		log.WithError(err).WithField("filename", file.Name).Warn("Failed to build preview")
		return nil
	}
	return preview
}

func (h *Handlers) logAPICall(c *gin.Context, entry models.APILog, start time.Time) {
	entry.ProcessingTime = h.now().Sub(start).Seconds()
	if err := h.Analyses.LogAPICall(c.Request.Context(), entry); err != nil {
		log.WithError(err).Warn("Failed to write api log")
	}
}

func (h *Handlers) publish(rec *models.AnalysisRecord) {
	if h.Publisher == nil {
		return
	}
	res := rec.Result
	event := models.AnalysisEvent{
		AnalysisID:   rec.ID,
		UserID:       rec.UserID,
		Filename:     rec.Filename,
		FileHash:     rec.FileHash,
		Prediction:   string(res.Prediction),
		Confidence:   res.Confidence,
		IsMock:       res.Mock,
		ModelVersion: res.ModelVersion,
		Error:        res.Error,
		CreatedAt:    rec.CreatedAt,
	}
	if err := h.Publisher.Publish(event); err != nil {
		metrics.EventPublishErrorTotal.Inc()
		log.WithError(err).WithField("analysis_id", rec.ID).Warn("Failed to publish analysis event")
	}
}
