package handlers

import (
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"pixeltruth/database"
	"pixeltruth/middleware"
	"pixeltruth/models"
)

// Register handles user registration
func (h *Handlers) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.Auth.CreateUser(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login handles email/password authentication
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "incorrect email or password"})
		case errors.Is(err, database.ErrUserInactive):
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: err.Error()})
		default:
			log.WithError(err).Error("Login failed")
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to log in"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RefreshToken exchanges a refresh token from the body or the Authorization
// header for a new token pair
func (h *Handlers) RefreshToken(c *gin.Context) {
	var req models.RefreshTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = middleware.ExtractToken(c.GetHeader("Authorization"))
	}
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "refresh token is required"})
		return
	}

	resp, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidToken) {
			log.WithError(err).Error("Token refresh failed")
		}
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user
func (h *Handlers) Me(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	user, err := h.Auth.GetUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.WithError(err).Error("Failed to get user")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// Logout revokes the access token used for the request
func (h *Handlers) Logout(c *gin.Context) {
	id, ok := userID(c)
	token := c.GetString("token")
	if !ok {
		return
	}

	// Revocation failures still log the client out.
	if err := h.Auth.InvalidateToken(c.Request.Context(), id, token); err != nil {
		log.WithError(err).WithField("user_id", id).Warn("Failed to invalidate token")
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "logged out successfully"})
}

// AuthTest lets clients check that the API is reachable
func (h *Handlers) AuthTest(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "connected",
		"message":   "Backend is running",
		"timestamp": h.now().UTC().Format("2006-01-02T15:04:05Z"),
	})
}
