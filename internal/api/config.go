package api

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the admin API configuration
type Config struct {
	// Server configuration
	Addr string

	// API configuration
	APIKey          string
	RateLimit       int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Dead letter listing
	DefaultPageSize int
	MaxPageSize     int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	rateLimit, err := strconv.Atoi(getEnvOrDefault("ADMIN_RATE_LIMIT", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_RATE_LIMIT: %w", err)
	}

	requestTimeout, err := time.ParseDuration(getEnvOrDefault("ADMIN_REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnvOrDefault("ADMIN_SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Addr:            getEnvOrDefault("ADMIN_ADDR", ":8081"),
		APIKey:          os.Getenv("ADMIN_API_KEY"),
		RateLimit:       rateLimit,
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
		DefaultPageSize: 50,
		MaxPageSize:     1000,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
