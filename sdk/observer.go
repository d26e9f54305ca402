package sdk

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer provides hooks for monitoring requests as they move through the
// transport. Observer methods are called from transport goroutines and must
// be fast and non-blocking.
//
// Example implementation:
//
//	type countingObserver struct{ failures atomic.Int64 }
//
//	func (o *countingObserver) OnRequestQueued(method, endpoint string) {}
//	func (o *countingObserver) OnRequestStart(method, endpoint string)  {}
//	func (o *countingObserver) OnRequestEnd(method, endpoint string, status int, d time.Duration, err error) {
//	    if err != nil || status >= 400 {
//	        o.failures.Add(1)
//	    }
//	}
type Observer interface {
	// OnRequestQueued is called when a request has to wait because all
	// connection slots are busy.
	OnRequestQueued(method, endpoint string)

	// OnRequestStart is called when a request is handed to the Doer.
	OnRequestStart(method, endpoint string)

	// OnRequestEnd is called when the Doer returns. status is zero when no
	// response was received, in which case err describes the failure.
	OnRequestEnd(method, endpoint string, status int, duration time.Duration, err error)
}

// NoopObserver is a no-op implementation of Observer that does nothing.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnRequestQueued does nothing
func (n *NoopObserver) OnRequestQueued(method, endpoint string) {}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, endpoint string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, endpoint string, status int, duration time.Duration, err error) {
}

// MetricsCollector is a simple in-memory Observer. It counts requests,
// errors and status codes per endpoint and tracks the peak number of
// requests in flight at once.
//
// This implementation keeps every latency sample and is intended for
// debugging and tests. Use PrometheusObserver in production.
//
//	metrics := sdk.NewMetricsCollector()
//	client, _ := sdk.NewEventClient(sdk.DefaultConfig().WithObserver(metrics))
//	// ...
//	fmt.Println(metrics.PeakInFlight())
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount map[string]int64
	queuedCount  map[string]int64
	latencies    map[string][]time.Duration
	errorCount   map[string]int64
	statusCount  map[int]int64
	inFlight     int
	peakInFlight int
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount: make(map[string]int64),
		queuedCount:  make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
		errorCount:   make(map[string]int64),
		statusCount:  make(map[int]int64),
	}
}

// OnRequestQueued increments the queued count
func (m *MetricsCollector) OnRequestQueued(method, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queuedCount[method+" "+endpoint]++
}

// OnRequestStart increments the request count and in-flight gauge
func (m *MetricsCollector) OnRequestStart(method, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+endpoint]++
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
}

// OnRequestEnd records duration, status and errors
func (m *MetricsCollector) OnRequestEnd(method, endpoint string, status int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + endpoint
	m.inFlight--
	m.latencies[key] = append(m.latencies[key], duration)
	if status != 0 {
		m.statusCount[status]++
	}
	if err != nil {
		m.errorCount[key]++
	}
}

// PeakInFlight returns the largest number of requests observed in flight
// at the same time.
func (m *MetricsCollector) PeakInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakInFlight
}

// InFlight returns the number of requests currently in flight.
func (m *MetricsCollector) InFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inFlight
}

// GetMetrics returns a snapshot of current metrics.
// The returned map is a copy and safe to read without locks.
//
// The metrics include:
//   - "requests": Map of "METHOD endpoint" to request count
//   - "queued": Map of "METHOD endpoint" to the number of requests that waited for a slot
//   - "latencies": Map of "METHOD endpoint" to latency measurements
//   - "errors": Map of "METHOD endpoint" to transport error count
//   - "statuses": Map of HTTP status to count
//   - "in_flight": Requests currently in flight
//   - "peak_in_flight": Largest number of concurrent requests observed
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requestsCopy := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requestsCopy[k] = v
	}

	queuedCopy := make(map[string]int64, len(m.queuedCount))
	for k, v := range m.queuedCount {
		queuedCopy[k] = v
	}

	latenciesCopy := make(map[string][]time.Duration, len(m.latencies))
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}

	errorsCopy := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errorsCopy[k] = v
	}

	statusesCopy := make(map[int]int64, len(m.statusCount))
	for k, v := range m.statusCount {
		statusesCopy[k] = v
	}

	return map[string]interface{}{
		"requests":       requestsCopy,
		"queued":         queuedCopy,
		"latencies":      latenciesCopy,
		"errors":         errorsCopy,
		"statuses":       statusesCopy,
		"in_flight":      m.inFlight,
		"peak_in_flight": m.peakInFlight,
	}
}

// LogObserver writes request lifecycle events to a logrus logger. Queued and
// started requests are logged at Trace, completions at Debug, failures and
// error statuses at Warn.
type LogObserver struct {
	logger logrus.FieldLogger
}

// NewLogObserver creates an observer logging to logger. A nil logger uses
// logrus.StandardLogger().
func NewLogObserver(logger logrus.FieldLogger) *LogObserver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogObserver{logger: logger}
}

// OnRequestQueued logs that a request is waiting for a slot
func (o *LogObserver) OnRequestQueued(method, endpoint string) {
	o.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
	}).Trace("request queued")
}

// OnRequestStart logs the dispatch of a request
func (o *LogObserver) OnRequestStart(method, endpoint string) {
	o.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
	}).Trace("request started")
}

// OnRequestEnd logs the completion of a request
func (o *LogObserver) OnRequestEnd(method, endpoint string, status int, duration time.Duration, err error) {
	entry := o.logger.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case err != nil:
		entry.WithError(err).Warn("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Debug("request completed")
	}
}

// CompositeObserver allows multiple observers to be combined into one.
// All observer methods are called on each child observer in order.
// If an observer panics, it's caught to prevent affecting other observers.
//
//	observer := sdk.NewCompositeObserver(
//	    sdk.NewLogObserver(logger),
//	    sdk.NewPrometheusObserver(prometheus.DefaultRegisterer),
//	)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				// Observer panicked, ignore
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestQueued notifies all observers
func (c *CompositeObserver) OnRequestQueued(method, endpoint string) {
	c.each(func(o Observer) { o.OnRequestQueued(method, endpoint) })
}

// OnRequestStart notifies all observers
func (c *CompositeObserver) OnRequestStart(method, endpoint string) {
	c.each(func(o Observer) { o.OnRequestStart(method, endpoint) })
}

// OnRequestEnd notifies all observers
func (c *CompositeObserver) OnRequestEnd(method, endpoint string, status int, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(method, endpoint, status, duration, err) })
}
