package relay

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/birbparty/pio-go/sdk"
)

// Submission modes
const (
	ModeBatch = "batch"
	ModeEach  = "each"
)

// MaxBatchSize is the event server's limit for one batch request
const MaxBatchSize = 50

// Config holds relay configuration
type Config struct {
	// Relay identification
	RelayID string

	// Processing settings
	Mode         string
	BatchSize    int
	MaxDeliver   int
	RetryDelay   time.Duration
	ErrorBackoff time.Duration

	// Monitoring
	StatsInterval time.Duration

	// Event server
	EventURL       string
	AccessKey      string
	MaxConnections int
	QueueDepth     int
	RequestTimeout time.Duration
	Transport      string
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	batchSize, err := strconv.Atoi(getEnvOrDefault("RELAY_BATCH_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_BATCH_SIZE: %w", err)
	}

	maxDeliver, err := strconv.Atoi(getEnvOrDefault("NATS_CONSUMER_MAX_DELIVER", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_CONSUMER_MAX_DELIVER: %w", err)
	}

	retryDelay, err := time.ParseDuration(getEnvOrDefault("RELAY_RETRY_DELAY", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_RETRY_DELAY: %w", err)
	}

	errorBackoff, err := time.ParseDuration(getEnvOrDefault("RELAY_ERROR_BACKOFF", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_ERROR_BACKOFF: %w", err)
	}

	statsInterval, err := time.ParseDuration(getEnvOrDefault("RELAY_STATS_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_STATS_INTERVAL: %w", err)
	}

	maxConnections, err := strconv.Atoi(getEnvOrDefault("PIO_MAX_CONNECTIONS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid PIO_MAX_CONNECTIONS: %w", err)
	}

	queueDepth, err := strconv.Atoi(getEnvOrDefault("PIO_QUEUE_DEPTH", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid PIO_QUEUE_DEPTH: %w", err)
	}

	requestTimeout, err := time.ParseDuration(getEnvOrDefault("PIO_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PIO_TIMEOUT: %w", err)
	}

	relayID := getEnvOrDefault("RELAY_ID", generateRelayID())

	cfg := &Config{
		RelayID:        relayID,
		Mode:           getEnvOrDefault("RELAY_MODE", ModeBatch),
		BatchSize:      batchSize,
		MaxDeliver:     maxDeliver,
		RetryDelay:     retryDelay,
		ErrorBackoff:   errorBackoff,
		StatsInterval:  statsInterval,
		EventURL:       getEnvOrDefault("PIO_EVENT_URL", sdk.DefaultEventURL),
		AccessKey:      os.Getenv("PIO_ACCESS_KEY"),
		MaxConnections: maxConnections,
		QueueDepth:     queueDepth,
		RequestTimeout: requestTimeout,
		Transport:      getEnvOrDefault("PIO_TRANSPORT", "native"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the processing settings
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeBatch:
		if c.BatchSize > MaxBatchSize {
			return fmt.Errorf("batch size %d exceeds the server limit of %d", c.BatchSize, MaxBatchSize)
		}
	case ModeEach:
	default:
		return fmt.Errorf("unknown relay mode %q", c.Mode)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval)
	}
	if c.Transport != "native" && c.Transport != "fasthttp" {
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

// SDKConfig returns the event client configuration for the relay
func (c *Config) SDKConfig() *sdk.Config {
	config := sdk.DefaultConfig().
		WithBaseURL(c.EventURL).
		WithAccessKey(c.AccessKey).
		WithMaxConcurrentConnections(c.MaxConnections).
		WithQueueDepth(c.QueueDepth).
		WithTimeout(c.RequestTimeout).
		WithHeader("X-Relay-Id", c.RelayID)
	if c.Transport == "fasthttp" {
		config.WithFastHTTP()
	}
	return config
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func generateRelayID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}
