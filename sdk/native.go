package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// netHTTPDoer is the default Doer, backed by a pooled net/http client.
type netHTTPDoer struct {
	client *http.Client
}

// newNetHTTPDoer creates a net/http backend whose connection pool is sized
// for maxConns concurrent requests to a single host.
func newNetHTTPDoer(maxConns int) *netHTTPDoer {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
		DisableKeepAlives:   false,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &netHTTPDoer{
		// Deadlines come from the request context
		client: &http.Client{Transport: transport},
	}
}

// Do performs a single HTTP exchange and reads the whole response body.
func (d *netHTTPDoer) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// CloseIdleConnections closes pooled connections
func (d *netHTTPDoer) CloseIdleConnections() {
	d.client.CloseIdleConnections()
}
