package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chronocharm-backend/internal/middleware"
	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	var insufficient *services.InsufficientFundsError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Insufficient Mana",
			"details":   err.Error(),
			"balance":   insufficient.Balance,
			"required":  insufficient.Required,
			"shortfall": insufficient.Shortfall(),
		})
	case errors.Is(err, services.ErrWagerAlreadyOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "Wager already open", "details": err.Error()})
	case errors.Is(err, services.ErrWagerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Wager not found", "details": err.Error()})
	case errors.Is(err, services.ErrStakeMismatch), errors.Is(err, services.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wager", "details": err.Error()})
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	case errors.Is(err, services.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}

// requestUserID resolves the acting user. A token subject wins over the body,
// which wins over the query string.
func requestUserID(c *gin.Context, bodyUserID string) string {
	if userID := c.GetString(middleware.ContextUserID); userID != "" {
		return userID
	}
	if bodyUserID != "" {
		return models.NormalizeUserID(bodyUserID)
	}
	return models.NormalizeUserID(c.Query("user_id"))
}
