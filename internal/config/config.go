package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket timings
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Presence & assignment engine
	ActivityTimeout    time.Duration // last activity older than this = stale
	ReclaimWindow      time.Duration // no ticket activity for this long = reclaimable
	RedistributeCap    int           // max orphaned tickets handed to one agent per run
	RebalancingEnabled bool          // disables automatic ticket movement entirely

	// External reply-suggestion service
	SuggestURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SuggestURL:     getEnv("SUGGEST_URL", "http://localhost:8090"),
	}

	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	activityTimeout, err := strconv.Atoi(getEnv("ACTIVITY_TIMEOUT", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACTIVITY_TIMEOUT: %w", err)
	}
	config.ActivityTimeout = time.Duration(activityTimeout) * time.Second

	reclaimWindow, err := strconv.Atoi(getEnv("RECLAIM_WINDOW", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECLAIM_WINDOW: %w", err)
	}
	config.ReclaimWindow = time.Duration(reclaimWindow) * time.Second

	redistributeCap, err := strconv.Atoi(getEnv("REDISTRIBUTE_CAP", "2"))
	if err != nil || redistributeCap < 1 {
		return nil, fmt.Errorf("invalid REDISTRIBUTE_CAP: %v", getEnv("REDISTRIBUTE_CAP", "2"))
	}
	config.RedistributeCap = redistributeCap

	config.RebalancingEnabled = getEnv("REBALANCING_ENABLED", "true") == "true"

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
