package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chronocharm-backend/internal/services"
)

const (
	ContextUserID    = "user_id"
	ContextSessionID = "session_id"
)

// IdentityMiddleware binds a bearer token's subject to the request. Requests
// without a token pass through and identify themselves by user_id; a token
// that is present but invalid is rejected.
func IdentityMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtService == nil || !jwtService.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextSessionID, claims.SessionID)

		c.Next()
	}
}

// RateLimitMiddleware caps how often one caller may hit an action within
// window. Anonymous callers are keyed by user_id, then by client IP.
func RateLimitMiddleware(ledger *services.Ledger, action string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(ContextUserID)
		if caller == "" {
			caller = c.Query("user_id")
		}
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}

		allowed, err := ledger.Allow(c.Request.Context(), caller, action, limit, window)
		if err != nil {
			log.Printf("Rate limit check failed for %s: %v", caller, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
