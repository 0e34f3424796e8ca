package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"chronocharm-backend/internal/config"
	"chronocharm-backend/internal/handlers"
	"chronocharm-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var store services.Store
	switch cfg.StorageBackend {
	case config.StorageMemory:
		log.Println("Using in-memory store; balances are lost on restart")
		store = services.NewMemoryStore(cfg.StartingMana)
	default:
		redisService, err := services.NewRedisService(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		store = redisService
	}
	defer store.Close()

	oracle, err := services.NewGeminiOracle(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to create oracle: %v", err)
	}
	oddsMaker := services.NewOddsMaker(oracle, cfg.OracleTimeout)
	log.Printf("Odds Maker using model %s", oracle.Model())

	hub := handlers.NewWebSocketHub()

	ledger := services.NewLedger(store)
	ledger.SetGracePeriod(cfg.WagerGrace)
	ledger.SetBroadcaster(hub)

	jwtService := services.NewJWTService(cfg.JWTSecret)
	if !jwtService.Enabled() {
		log.Println("JWT_SECRET not set; requests identify themselves by user_id")
	}

	if cfg.WagerSweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.WagerSweepInterval)
			defer ticker.Stop()

			for now := range ticker.C {
				if _, err := ledger.ExpireOverdueWagers(context.Background(), now); err != nil {
					log.Printf("Wager sweep failed: %v", err)
				}
			}
		}()
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Ledger:      ledger,
		OddsMaker:   oddsMaker,
		JWTService:  jwtService,
		Hub:         hub,
		AIRateLimit: cfg.AIRateLimit,
	})

	port := cfg.Port
	if port == "" {
		port = "8004"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
