package sdk

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
)

// FastHTTPDoer is a Doer backed by fasthttp. It trades net/http's
// compatibility for fewer allocations on high-volume ingestion paths.
//
//	config := sdk.DefaultConfig().
//	    WithMaxConcurrentConnections(16).
//	    WithFastHTTP()
type FastHTTPDoer struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// NewFastHTTPDoer creates a fasthttp backend allowing maxConns connections
// per host. timeout is used when the request context has no deadline, and
// also bounds how long a request waits for a free connection. A cancelled
// exchange keeps its connection until the server answers, so later requests
// wait for it rather than fail with fasthttp.ErrNoFreeConns.
func NewFastHTTPDoer(maxConns int, timeout time.Duration) *FastHTTPDoer {
	if maxConns <= 0 {
		maxConns = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FastHTTPDoer{
		client: &fasthttp.Client{
			Name:                          "pio-go-sdk",
			MaxConnsPerHost:               maxConns,
			MaxConnWaitTimeout:            timeout,
			MaxIdleConnDuration:           90 * time.Second,
			NoDefaultUserAgentHeader:      true,
			DisableHeaderNamesNormalizing: false,
		},
		timeout: timeout,
	}
}

// Do performs a single HTTP exchange. fasthttp has no context support, so
// the context deadline is translated into a fasthttp deadline and
// cancellation is raced against the exchange.
func (d *FastHTTPDoer) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()

	freq.SetRequestURI(req.URL)
	freq.Header.SetMethod(req.Method)
	for key, values := range req.Header {
		if key == "Content-Length" {
			continue
		}
		for _, v := range values {
			freq.Header.Add(key, v)
		}
	}
	if len(req.Body) > 0 {
		if req.Header.Get("Content-Type") == "" {
			freq.Header.SetContentType("application/json")
		}
		freq.SetBody(req.Body)
	}
	freq.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(d.timeout)
	}

	type outcome struct {
		resp *RawResponse
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer fasthttp.ReleaseRequest(freq)
		defer fasthttp.ReleaseResponse(fresp)

		if err := d.client.DoDeadline(freq, fresp, deadline); err != nil {
			if errors.Is(err, fasthttp.ErrTimeout) {
				err = context.DeadlineExceeded
			}
			done <- outcome{err: err}
			return
		}

		header := make(http.Header)
		fresp.Header.VisitAll(func(k, v []byte) {
			header.Add(string(k), string(v))
		})
		body := append([]byte(nil), fresp.Body()...)
		done <- outcome{resp: &RawResponse{
			StatusCode: fresp.StatusCode(),
			Header:     header,
			Body:       body,
		}}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseIdleConnections closes pooled connections
func (d *FastHTTPDoer) CloseIdleConnections() {
	d.client.CloseIdleConnections()
}
