package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	Port string
	Env  string

	StorageBackend string
	RedisURL       string
	RedisPass      string
	RedisDB        int

	GeminiAPIKey  string
	GeminiModel   string
	OracleTimeout time.Duration

	JWTSecret string

	StartingMana       int64
	WagerSweepInterval time.Duration
	WagerGrace         time.Duration
	AIRateLimit        int
}

// Load reads configuration from the environment. A missing Oracle credential
// is an error: the service cannot run without it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8004"),
		Env:            getEnv("ENV", "development"),
		StorageBackend: getEnv("STORAGE_BACKEND", StorageRedis),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:      os.Getenv("REDIS_PASSWORD"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AIRateLimit, err = getInt("AI_RATE_LIMIT", 20); err != nil {
		return nil, err
	}

	mana, err := getInt("STARTING_MANA", 1000)
	if err != nil {
		return nil, err
	}
	cfg.StartingMana = int64(mana)

	if cfg.OracleTimeout, err = getDuration("ORACLE_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.WagerSweepInterval, err = getDuration("WAGER_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.WagerGrace, err = getDuration("WAGER_GRACE", 10*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch c.StorageBackend {
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=redis")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.StartingMana < 0 {
		return fmt.Errorf("STARTING_MANA must not be negative")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	if c.AIRateLimit < 1 {
		return fmt.Errorf("AI_RATE_LIMIT must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}
