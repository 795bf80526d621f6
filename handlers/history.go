package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pixeltruth/database"
	"pixeltruth/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1000000
)

// History lists the caller's analyses, newest first
func (h *Handlers) History(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	page, err := queryInt(c, "page", 1, 1, maxPage)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	pageSize, err := queryInt(c, "page_size", defaultPageSize, 1, maxPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	items, total, err := h.Analyses.ListAnalyses(c.Request.Context(), id, page, pageSize)
	if err != nil {
		log.WithError(err).WithField("user_id", id).Error("Failed to list analyses")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get history"})
		return
	}

	c.JSON(http.StatusOK, models.HistoryResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

// GetAnalysis returns one of the caller's analyses
func (h *Handlers) GetAnalysis(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	rec, err := h.Analyses.GetAnalysis(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		h.notFoundOr(c, err, "failed to get analysis")
		return
	}

	c.JSON(http.StatusOK, models.NewAnalysisResponse(rec))
}

// GetPreview serves the stored JPEG preview of an analysis
func (h *Handlers) GetPreview(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	preview, err := h.Analyses.GetPreview(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		h.notFoundOr(c, err, "failed to get preview")
		return
	}

	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", preview)
}

// DeleteAnalysis removes one of the caller's analyses
func (h *Handlers) DeleteAnalysis(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	if err := h.Analyses.DeleteAnalysis(c.Request.Context(), id, c.Param("id")); err != nil {
		h.notFoundOr(c, err, "failed to delete analysis")
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "analysis deleted successfully"})
}

// Stats summarises the caller's analyses
func (h *Handlers) Stats(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	stats, err := h.Analyses.Stats(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).WithField("user_id", id).Error("Failed to get stats")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) notFoundOr(c *gin.Context, err error, msg string) {
	if errors.Is(err, database.ErrAnalysisNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "analysis not found"})
		return
	}
	log.WithError(err).WithField("analysis_id", c.Param("id")).Error(msg)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: msg})
}

// queryInt parses an optional integer query parameter within [lo, hi].
func queryInt(c *gin.Context, key string, def, lo, hi int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", key, lo, hi)
	}
	return v, nil
}
