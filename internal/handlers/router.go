package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chronocharm-backend/internal/middleware"
	"chronocharm-backend/internal/services"
)

type RouterDeps struct {
	Ledger      *services.Ledger
	OddsMaker   *services.OddsMaker
	JWTService  *services.JWTService
	Hub         *WebSocketHub
	AIRateLimit int
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Hub == nil {
		deps.Hub = NewWebSocketHub()
	}
	if deps.AIRateLimit <= 0 {
		deps.AIRateLimit = services.DefaultRateLimitAI
	}

	wagerHandler := NewWagerHandler(deps.Ledger)
	questHandler := NewQuestHandler(deps.OddsMaker, deps.Ledger)
	userHandler := NewUserHandler(deps.Ledger, deps.JWTService)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.Ledger)

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "chronocharm"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	identity := middleware.IdentityMiddleware(deps.JWTService)

	router.POST("/auth/token", userHandler.IssueToken)

	api := router.Group("/api")
	api.Use(identity)
	{
		api.GET("/balance", wagerHandler.GetBalance)
		api.POST("/reset", wagerHandler.Reset)
		api.GET("/transactions", wagerHandler.GetTransactions)

		wager := api.Group("/wager")
		{
			wager.POST("/start", wagerHandler.StartWager)
			wager.POST("/complete", wagerHandler.CompleteWager)
			wager.GET("/active", wagerHandler.GetActiveWagers)
		}

		api.POST("/breakdown",
			middleware.RateLimitMiddleware(deps.Ledger, "breakdown", deps.AIRateLimit, time.Minute),
			questHandler.Breakdown)
		api.POST("/schedule",
			middleware.RateLimitMiddleware(deps.Ledger, "schedule", deps.AIRateLimit, time.Minute),
			questHandler.Schedule)

		api.GET("/stats", userHandler.GetStats)
		api.POST("/stats", userHandler.UpdateStats)

		api.GET("/ws", wsHandler.HandleWebSocket)
	}

	return router
}
