package sdk

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports request metrics to Prometheus:
//
//	pio_client_requests_total{method,endpoint,status}
//	pio_client_request_duration_seconds{method,endpoint}
//	pio_client_requests_in_flight
//	pio_client_requests_queued_total{endpoint}
//
// Failed requests without a response are counted with status "error".
type PrometheusObserver struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	queuedTotal     *prometheus.CounterVec
}

// NewPrometheusObserver registers the SDK metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer. Registering twice with the same registry
// panics, so create one observer per registry and share it between clients.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusObserver{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pio_client_requests_total",
			Help: "Total number of requests sent to the event server or engine",
		}, []string{"method", "endpoint", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pio_client_request_duration_seconds",
			Help:    "Duration of requests in seconds, measured from dispatch",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pio_client_requests_in_flight",
			Help: "Number of requests currently dispatched",
		}),

		queuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pio_client_requests_queued_total",
			Help: "Total number of requests that waited for a connection slot",
		}, []string{"endpoint"}),
	}
}

// OnRequestQueued counts a queued request
func (p *PrometheusObserver) OnRequestQueued(method, endpoint string) {
	p.queuedTotal.WithLabelValues(endpoint).Inc()
}

// OnRequestStart increments the in-flight gauge
func (p *PrometheusObserver) OnRequestStart(method, endpoint string) {
	p.inFlight.Inc()
}

// OnRequestEnd records the request outcome and duration
func (p *PrometheusObserver) OnRequestEnd(method, endpoint string, status int, duration time.Duration, err error) {
	p.inFlight.Dec()
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	p.requestsTotal.WithLabelValues(method, endpoint, label).Inc()
	p.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
