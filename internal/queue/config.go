package queue

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds queue configuration
type Config struct {
	// NATS connection settings
	URL           string
	Name          string
	User          string
	Password      string
	ReconnectWait time.Duration

	// JetStream settings
	StreamName       string
	StreamMaxAge     time.Duration
	StreamMaxBytes   int64
	StreamMaxMsgs    int64
	StreamMaxMsgSize int32
	StreamReplicas   int
	DuplicateWindow  time.Duration

	// Consumer settings
	ConsumerName          string
	ConsumerMaxDeliver    int
	ConsumerAckWait       time.Duration
	ConsumerMaxAckPending int

	// Fetch settings
	FetchSize    int
	FetchTimeout time.Duration
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	streamMaxBytes, err := strconv.ParseInt(getEnvOrDefault("NATS_STREAM_MAX_BYTES", "1073741824"), 10, 64) // 1GB default
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_BYTES: %w", err)
	}

	streamMaxMsgs, err := strconv.ParseInt(getEnvOrDefault("NATS_STREAM_MAX_MSGS", "1000000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_MSGS: %w", err)
	}

	streamMaxMsgSize, err := strconv.ParseInt(getEnvOrDefault("NATS_STREAM_MAX_MSG_SIZE", "1048576"), 10, 32) // 1MB default
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_MSG_SIZE: %w", err)
	}

	streamReplicas, err := strconv.Atoi(getEnvOrDefault("NATS_STREAM_REPLICAS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_REPLICAS: %w", err)
	}

	streamMaxAge, err := parseDuration(getEnvOrDefault("NATS_STREAM_MAX_AGE", "72h"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_AGE: %w", err)
	}

	consumerMaxDeliver, err := strconv.Atoi(getEnvOrDefault("NATS_CONSUMER_MAX_DELIVER", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_CONSUMER_MAX_DELIVER: %w", err)
	}

	consumerMaxAckPending, err := strconv.Atoi(getEnvOrDefault("NATS_CONSUMER_MAX_ACK_PENDING", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_CONSUMER_MAX_ACK_PENDING: %w", err)
	}

	consumerAckWait, err := parseDuration(getEnvOrDefault("NATS_CONSUMER_ACK_WAIT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_CONSUMER_ACK_WAIT: %w", err)
	}

	fetchSize, err := strconv.Atoi(getEnvOrDefault("NATS_FETCH_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_FETCH_SIZE: %w", err)
	}

	fetchTimeout, err := parseDuration(getEnvOrDefault("NATS_FETCH_TIMEOUT", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_FETCH_TIMEOUT: %w", err)
	}

	return &Config{
		URL:                   getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		Name:                  getEnvOrDefault("NATS_NAME", "pio-relay"),
		User:                  os.Getenv("NATS_USER"),
		Password:              os.Getenv("NATS_PASSWORD"),
		ReconnectWait:         2 * time.Second,
		StreamName:            getEnvOrDefault("NATS_STREAM_NAME", "PIO_EVENTS"),
		StreamMaxAge:          streamMaxAge,
		StreamMaxBytes:        streamMaxBytes,
		StreamMaxMsgs:         streamMaxMsgs,
		StreamMaxMsgSize:      int32(streamMaxMsgSize),
		StreamReplicas:        streamReplicas,
		DuplicateWindow:       5 * time.Minute,
		ConsumerName:          getEnvOrDefault("NATS_CONSUMER_NAME", "pio-relay"),
		ConsumerMaxDeliver:    consumerMaxDeliver,
		ConsumerAckWait:       consumerAckWait,
		ConsumerMaxAckPending: consumerMaxAckPending,
		FetchSize:             fetchSize,
		FetchTimeout:          fetchTimeout,
	}, nil
}

// Validate checks the settings the client relies on.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("NATS URL cannot be empty")
	}
	if c.StreamName == "" || c.ConsumerName == "" {
		return fmt.Errorf("stream and consumer names are required")
	}
	if c.FetchSize <= 0 {
		return fmt.Errorf("fetch size must be positive, got %d", c.FetchSize)
	}
	if c.ConsumerMaxDeliver == 0 {
		return fmt.Errorf("consumer max deliver cannot be zero")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
