package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, DefaultEventURL, config.BaseURL)
	assert.Equal(t, 1, config.MaxConcurrentConnections)
	assert.Equal(t, 0, config.QueueDepth)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.NotNil(t, config.Headers)
	assert.Contains(t, config.UserAgent, Version)
	assert.IsType(t, &NoopObserver{}, config.Observer)

	assert.Equal(t, DefaultEngineURL, DefaultEngineConfig().BaseURL)
}

func TestConfigBuilder(t *testing.T) {
	metrics := NewMetricsCollector()
	logger := quietLogger()

	config := DefaultConfig().
		WithBaseURL("https://events.example.com").
		WithAccessKey("key").
		WithMaxConcurrentConnections(8).
		WithQueueDepth(100).
		WithTimeout(10*time.Second).
		WithHeader("X-Custom", "value").
		WithObserver(metrics).
		WithLogger(logger)

	assert.Equal(t, "https://events.example.com", config.BaseURL)
	assert.Equal(t, "key", config.AccessKey)
	assert.Equal(t, 8, config.MaxConcurrentConnections)
	assert.Equal(t, 100, config.QueueDepth)
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.Equal(t, "value", config.Headers["X-Custom"])
	assert.Same(t, metrics, config.Observer)
	assert.Same(t, logger, config.Logger)
}

func TestConfigWithFastHTTP(t *testing.T) {
	config := DefaultConfig().WithMaxConcurrentConnections(4).WithFastHTTP()
	doer, ok := config.Doer.(*FastHTTPDoer)
	require.True(t, ok)
	assert.Equal(t, 4, doer.client.MaxConnsPerHost)
	assert.Equal(t, 5*time.Second, doer.timeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name:   "defaults are valid",
			config: DefaultConfig(),
		},
		{
			name:    "empty base URL",
			config:  &Config{},
			wantErr: true,
		},
		{
			name:    "relative base URL",
			config:  &Config{BaseURL: "/events"},
			wantErr: true,
		},
		{
			name:    "unparseable base URL",
			config:  &Config{BaseURL: "http://[::1"},
			wantErr: true,
		},
		{
			name:    "negative concurrency",
			config:  &Config{BaseURL: "http://localhost:7070", MaxConcurrentConnections: -1},
			wantErr: true,
		},
		{
			name:    "negative queue depth",
			config:  &Config{BaseURL: "http://localhost:7070", QueueDepth: -1},
			wantErr: true,
		},
		{
			name:   "zero values filled",
			config: &Config{BaseURL: "http://localhost:7070"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 1, c.MaxConcurrentConnections)
				assert.Equal(t, 5*time.Second, c.Timeout)
				assert.NotEmpty(t, c.UserAgent)
				assert.NotNil(t, c.Observer)
				assert.NotNil(t, c.Logger)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, tt.config)
			}
		})
	}
}

func TestConfigClone(t *testing.T) {
	original := DefaultConfig().WithHeader("A", "1")
	cp := original.clone()

	cp.Headers["A"] = "2"
	cp.BaseURL = "http://other:7070"

	assert.Equal(t, "1", original.Headers["A"])
	assert.Equal(t, DefaultEventURL, original.BaseURL)
}
