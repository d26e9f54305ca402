package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	meterMu       sync.Mutex
	meterProvider *sdkmetric.MeterProvider
)

// Metrics holds the relay's Prometheus collectors and mirrors the message
// counters to the OpenTelemetry meter.
type Metrics struct {
	messagesTotal   *prometheus.CounterVec
	batchSize       prometheus.Histogram
	submitDuration  *prometheus.HistogramVec
	deadLetters     *prometheus.CounterVec
	pending         prometheus.Gauge
	up              prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	messagesCounter metric.Int64Counter
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pio_relay_messages_total",
			Help: "Total number of queued messages handled, by outcome",
		}, []string{"outcome"}),

		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pio_relay_batch_size",
			Help:    "Number of events submitted per relay batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		submitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pio_relay_submit_duration_seconds",
			Help:    "Duration of relay batch submissions in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),

		deadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pio_relay_dead_letters_total",
			Help: "Total number of messages recorded as dead letters",
		}, []string{"reason"}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pio_relay_pending_messages",
			Help: "Messages waiting in the stream for the relay consumer",
		}),

		up: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pio_relay_up",
			Help: "Whether the relay is running (1) or not (0)",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pio_admin_http_requests_total",
			Help: "Total number of admin HTTP requests",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pio_admin_http_request_duration_seconds",
			Help:    "Duration of admin HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	counter, err := otel.Meter("github.com/birbparty/pio-go/relay").Int64Counter(
		"pio.relay.messages",
		metric.WithDescription("Queued messages handled by the relay"),
	)
	if err != nil {
		L().WithError(err).Warn("Failed to create relay message counter")
	} else {
		m.messagesCounter = counter
	}
	return m
}

// RecordMessage counts one handled message.
func (m *Metrics) RecordMessage(outcome string) {
	m.messagesTotal.WithLabelValues(outcome).Inc()
	if m.messagesCounter != nil {
		m.messagesCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// RecordBatch records the size and submission time of one batch.
func (m *Metrics) RecordBatch(mode string, size int, duration time.Duration) {
	m.batchSize.Observe(float64(size))
	m.submitDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordDeadLetter counts a dead-lettered message.
func (m *Metrics) RecordDeadLetter(reason string) {
	m.deadLetters.WithLabelValues(reason).Inc()
}

// SetPending updates the pending message gauge.
func (m *Metrics) SetPending(n uint64) {
	m.pending.Set(float64(n))
}

// SetUp marks the relay as running or stopped.
func (m *Metrics) SetUp(up bool) {
	if up {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// InitMetrics installs an OTLP meter provider when metrics export is
// enabled. Prometheus collectors work regardless.
func InitMetrics(cfg *Config) error {
	if !cfg.EnableMetrics || cfg.ExportToFile {
		return nil
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(cfg.MetricsInterval)*time.Second),
			),
		),
	)
	otel.SetMeterProvider(provider)

	meterMu.Lock()
	meterProvider = provider
	meterMu.Unlock()
	return nil
}

// CloseMetrics flushes and shuts down the meter provider
func CloseMetrics(ctx context.Context) error {
	meterMu.Lock()
	mp := meterProvider
	meterProvider = nil
	meterMu.Unlock()
	if mp != nil {
		return mp.Shutdown(ctx)
	}
	return nil
}
