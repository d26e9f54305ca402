package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/birbparty/pio-go/sdk"

// Request is one fully-formed HTTP request. URL must be absolute and already
// query-encoded; the transport never rewrites it.
type Request struct {
	// Endpoint names the operation for logs and metrics, e.g. "events.create"
	Endpoint string
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
}

// RawResponse is the status and body of a completed HTTP exchange.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer executes a single HTTP exchange. Implementations must honor ctx
// cancellation and must be safe for concurrent use. The transport bounds
// concurrency itself, so a Doer never sees more than
// Config.MaxConcurrentConnections calls at once.
type Doer interface {
	Do(ctx context.Context, req *Request) (*RawResponse, error)
	CloseIdleConnections()
}

// httpTransport owns the admission throttle and the request queue. Every
// request submitted to it produces exactly one Future.
//
// Admission works in two steps: a request first tries to take a connection
// slot; if all MaxConcurrentConnections slots are busy it takes a queue
// ticket (failing with ErrQueueFull when QueueDepth tickets are out) and
// waits for a slot on its own goroutine. A slot is released only after the
// request's Future is terminal.
type httpTransport struct {
	config   *Config
	doer     Doer
	ownsDoer bool
	slots    chan struct{}
	queue    chan struct{}
	observer Observer
	logger   *logrus.Logger
	tracer   trace.Tracer

	baseCtx    context.Context
	cancelBase context.CancelFunc
	inflight   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newHTTPTransport(config *Config) (*httpTransport, error) {
	doer := config.Doer
	ownsDoer := false
	if doer == nil {
		doer = newNetHTTPDoer(config.MaxConcurrentConnections)
		ownsDoer = true
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	t := &httpTransport{
		config:   config,
		doer:     doer,
		ownsDoer: ownsDoer,
		slots:    make(chan struct{}, config.MaxConcurrentConnections),
		observer: config.Observer,
		logger:   config.Logger,
		tracer:   tp.Tracer(tracerName, trace.WithInstrumentationVersion(Version)),
	}
	if config.QueueDepth > 0 {
		t.queue = make(chan struct{}, config.QueueDepth)
	}
	t.baseCtx, t.cancelBase = context.WithCancel(context.Background())
	return t, nil
}

// submit validates req and schedules it. Validation failures, a closed
// client and a full queue are returned synchronously; everything that
// happens after admission is reported through the Future.
func (t *httpTransport) submit(ctx context.Context, req *Request) (*Future, error) {
	if err := validateRequestURL(req.URL); err != nil {
		return nil, usageError(req.Endpoint, err, "%v", err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, usageError(req.Endpoint, ErrClientClosed, "client is closed")
	}

	queued := false
	select {
	case t.slots <- struct{}{}:
	default:
		if t.queue != nil {
			select {
			case t.queue <- struct{}{}:
			default:
				return nil, transportError(req.Endpoint, fmt.Errorf("%w (depth %d)", ErrQueueFull, t.config.QueueDepth))
			}
		}
		queued = true
		t.observer.OnRequestQueued(req.Method, req.Endpoint)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.baseCtx, cancel)
	future := newFuture(req.Endpoint, cancel)

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		defer stop()
		defer cancel()
		t.run(reqCtx, req, future, queued)
	}()

	return future, nil
}

func (t *httpTransport) run(ctx context.Context, req *Request, future *Future, queued bool) {
	if queued {
		select {
		case t.slots <- struct{}{}:
			if t.queue != nil {
				<-t.queue
			}
		case <-ctx.Done():
			if t.queue != nil {
				<-t.queue
			}
			future.fail(t.contextError(req.Endpoint, ctx))
			return
		}
	}
	// The slot is released after the future is settled.
	defer func() { <-t.slots }()

	if future.IsDone() {
		return
	}
	t.dispatch(ctx, req, future)
}

func (t *httpTransport) dispatch(ctx context.Context, req *Request, future *Future) {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	ctx, span := t.tracer.Start(ctx, "pio."+req.Endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("pio.endpoint", req.Endpoint),
		),
	)
	defer span.End()

	header := make(http.Header, len(req.Header)+len(t.config.Headers)+2)
	for k, v := range req.Header {
		header[k] = append([]string(nil), v...)
	}
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}
	header.Set("User-Agent", t.config.UserAgent)
	if len(req.Body) > 0 {
		header.Set("Content-Length", strconv.Itoa(len(req.Body)))
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	out := *req
	out.Header = header

	t.observer.OnRequestStart(req.Method, req.Endpoint)
	start := time.Now()

	resp, err := t.doer.Do(ctx, &out)
	duration := time.Since(start)
	if err == nil && resp == nil {
		err = errors.New("doer returned no response")
	}

	status := 0
	if err != nil {
		err = t.classify(req.Endpoint, ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.WithFields(logrus.Fields{
			"endpoint":    req.Endpoint,
			"method":      req.Method,
			"duration_ms": duration.Milliseconds(),
		}).WithError(err).Warn("pio request failed")
	} else {
		status = resp.StatusCode
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 400 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		t.logger.WithFields(logrus.Fields{
			"endpoint":    req.Endpoint,
			"method":      req.Method,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
		}).Debug("pio request completed")
	}
	t.observer.OnRequestEnd(req.Method, req.Endpoint, status, duration, err)

	if err != nil {
		future.fail(err)
	} else {
		future.complete(resp)
	}
}

// classify maps a Doer error onto the transport error taxonomy.
func (t *httpTransport) classify(op string, ctx context.Context, err error) error {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return err
	}
	// Backends may report their own deadline before ctx notices it
	if errors.Is(err, context.DeadlineExceeded) {
		return t.timeoutError(op)
	}
	if ctx.Err() != nil {
		return t.contextError(op, ctx)
	}
	return transportError(op, err)
}

func (t *httpTransport) contextError(op string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return t.timeoutError(op)
	}
	return transportError(op, fmt.Errorf("%w: %w", ErrCancelled, context.Canceled))
}

func (t *httpTransport) timeoutError(op string) error {
	return transportError(op, fmt.Errorf("%w after %s: %w", ErrTimeout, t.config.Timeout, context.DeadlineExceeded))
}

// close rejects new submissions, aborts queued and in-flight requests and
// waits for their futures to settle.
func (t *httpTransport) close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancelBase()
	t.inflight.Wait()
	if t.ownsDoer {
		t.doer.CloseIdleConnections()
	}
	return nil
}

func validateRequestURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	}
	return nil
}
