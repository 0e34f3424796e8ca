package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

type UserHandler struct {
	ledger     *services.Ledger
	jwtService *services.JWTService
}

func NewUserHandler(ledger *services.Ledger, jwtService *services.JWTService) *UserHandler {
	return &UserHandler{
		ledger:     ledger,
		jwtService: jwtService,
	}
}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

// IssueToken hands out a guest token bound to a user id.
func (h *UserHandler) IssueToken(c *gin.Context) {
	if h.jwtService == nil || !h.jwtService.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token issuing is disabled"})
		return
	}

	var req tokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	userID := requestUserID(c, req.UserID)

	if _, err := h.ledger.GetOrCreate(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	token, claims, err := h.jwtService.GenerateToken(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"user_id":    claims.UserID,
		"session_id": claims.SessionID,
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

func (h *UserHandler) GetStats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context(), requestUserID(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *UserHandler) UpdateStats(c *gin.Context) {
	// Omitted fields keep their defaults
	stats := models.DefaultRPGStats()
	if err := c.ShouldBindJSON(&stats); err != nil {
		respondBindError(c, err)
		return
	}

	saved, err := h.ledger.SaveStats(c.Request.Context(), requestUserID(c, ""), &stats)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, saved)
}
