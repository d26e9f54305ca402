package sdk

import (
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultEventURL is the base URL of a locally running event server.
	DefaultEventURL = "http://localhost:7070"

	// DefaultEngineURL is the base URL of a locally deployed engine.
	DefaultEngineURL = "http://localhost:8000"
)

// Config holds the configuration for an EventClient or EngineClient.
//
// A Config is only a template: clients copy it at construction time and the
// copy is never mutated afterwards, so changing a Config after NewEventClient
// returns has no effect on the client. Use Derive on a client to obtain a new
// client with different settings.
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://events.example.com").
//	    WithAccessKey(os.Getenv("PIO_ACCESS_KEY")).
//	    WithMaxConcurrentConnections(8).
//	    WithTimeout(10 * time.Second)
//
//	client, err := sdk.NewEventClient(config)
type Config struct {
	// BaseURL is the absolute base URL of the service.
	// Default: DefaultEventURL for event clients, DefaultEngineURL for engine clients.
	BaseURL string

	// AccessKey identifies the calling application to the event server.
	// It is sent as the accessKey query parameter. Engine clients ignore it.
	AccessKey string

	// MaxConcurrentConnections bounds the number of requests in flight at
	// once. Requests beyond this number wait in the queue instead of opening
	// new connections.
	// Default: 1
	MaxConcurrentConnections int

	// QueueDepth bounds the number of requests waiting for a connection slot.
	// Submitting beyond it fails with ErrQueueFull. Zero means unbounded.
	// Default: 0
	QueueDepth int

	// Timeout is the per-request wall clock, measured from dispatch.
	// Default: 5s
	Timeout time.Duration

	// Headers are added to every request.
	Headers map[string]string

	// UserAgent is sent with every request.
	UserAgent string

	// Doer executes single HTTP exchanges. If nil, a net/http backend sized
	// by MaxConcurrentConnections is used.
	Doer Doer

	// Observer receives request lifecycle callbacks. If nil, NoopObserver is used.
	Observer Observer

	// Logger receives structured request logs. If nil, logrus.StandardLogger() is used.
	Logger *logrus.Logger

	// TracerProvider creates request spans. If nil, the global provider is used.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a Config with the defaults of the event client.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                  DefaultEventURL,
		MaxConcurrentConnections: 1,
		QueueDepth:               0,
		Timeout:                  5 * time.Second,
		Headers:                  make(map[string]string),
		UserAgent:                "pio-go-sdk/" + Version,
		Observer:                 &NoopObserver{},
	}
}

// DefaultEngineConfig returns a Config pointing at a local engine.
func DefaultEngineConfig() *Config {
	return DefaultConfig().WithBaseURL(DefaultEngineURL)
}

// WithBaseURL sets the base URL of the service.
func (c *Config) WithBaseURL(u string) *Config {
	c.BaseURL = u
	return c
}

// WithAccessKey sets the access key sent to the event server.
func (c *Config) WithAccessKey(key string) *Config {
	c.AccessKey = key
	return c
}

// WithMaxConcurrentConnections sets the concurrency bound.
func (c *Config) WithMaxConcurrentConnections(n int) *Config {
	c.MaxConcurrentConnections = n
	return c
}

// WithQueueDepth sets the bound on queued requests. Zero means unbounded.
func (c *Config) WithQueueDepth(n int) *Config {
	c.QueueDepth = n
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithHeader adds a header sent with every request.
func (c *Config) WithHeader(key, value string) *Config {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// WithDoer sets the transport backend.
func (c *Config) WithDoer(d Doer) *Config {
	c.Doer = d
	return c
}

// WithFastHTTP selects the fasthttp transport backend, sized from the
// current MaxConcurrentConnections and Timeout.
func (c *Config) WithFastHTTP() *Config {
	c.Doer = NewFastHTTPDoer(c.MaxConcurrentConnections, c.Timeout)
	return c
}

// WithObserver sets the request observer.
func (c *Config) WithObserver(o Observer) *Config {
	c.Observer = o
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(l *logrus.Logger) *Config {
	c.Logger = l
	return c
}

// WithTracerProvider sets the tracer provider used for request spans.
func (c *Config) WithTracerProvider(tp trace.TracerProvider) *Config {
	c.TracerProvider = tp
	return c
}

// Validate fills defaults for unset values and rejects invalid ones.
// It is called by the client constructors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL must have a scheme and host", ErrInvalidConfig)
	}
	if c.MaxConcurrentConnections < 0 {
		return fmt.Errorf("%w: max concurrent connections cannot be negative", ErrInvalidConfig)
	}
	if c.MaxConcurrentConnections == 0 {
		c.MaxConcurrentConnections = 1
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("%w: queue depth cannot be negative", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "pio-go-sdk/" + Version
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return nil
}

// clone returns a copy that shares nothing mutable with c.
func (c *Config) clone() *Config {
	cp := *c
	cp.Headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		cp.Headers[k] = v
	}
	return &cp
}
