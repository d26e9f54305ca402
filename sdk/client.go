package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// baseClient holds what EventClient and EngineClient share: an immutable
// config copy and the transport built from it.
type baseClient struct {
	transport *httpTransport
	config    *Config
}

func newBaseClient(config *Config, defaults func() *Config) (*baseClient, error) {
	// Use default config if nil
	if config == nil {
		config = defaults()
	}
	config = config.clone()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	transport, err := newHTTPTransport(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &baseClient{
		transport: transport,
		config:    config,
	}, nil
}

// Config returns a copy of the client's configuration.
func (c *baseClient) Config() *Config {
	return c.config.clone()
}

// derivedConfig returns a copy of the config with overrides applied.
func (c *baseClient) derivedConfig(override func(*Config)) *Config {
	cfg := c.config.clone()
	if override != nil {
		override(cfg)
	}
	return cfg
}

// StatusAsync fetches the service's status document from GET /.
func (c *baseClient) StatusAsync(ctx context.Context) (*Result[string], error) {
	const op = "status"
	future, err := c.transport.submit(ctx, &Request{
		Endpoint: op,
		Method:   http.MethodGet,
		URL:      c.config.BaseURL + "/",
	})
	if err != nil {
		return nil, err
	}
	return newResult(future, decodeStatus(op)), nil
}

// Status returns the body of the service's status endpoint.
func (c *baseClient) Status(ctx context.Context) (string, error) {
	res, err := c.StatusAsync(ctx)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// Close rejects new requests, aborts pending ones and releases pooled
// connections. Close is safe to call multiple times.
func (c *baseClient) Close() error {
	return c.transport.close()
}

// url joins the base URL, an escaped path and optional query parameters.
func (c *baseClient) url(path string, query url.Values) string {
	u := c.config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// postJSON marshals body and submits it as a JSON POST.
func (c *baseClient) postJSON(ctx context.Context, op, target string, body interface{}) (*Future, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, usageError(op, err, "failed to marshal request body: %v", err)
	}
	return c.transport.submit(ctx, &Request{
		Endpoint: op,
		Method:   http.MethodPost,
		URL:      target,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     data,
	})
}
