// Package relay moves queued events from NATS JetStream to the event server.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/birbparty/pio-go/internal/cache"
	"github.com/birbparty/pio-go/internal/database"
	"github.com/birbparty/pio-go/internal/telemetry"
	"github.com/birbparty/pio-go/sdk"
)

// Submitter sends events to the event server. *sdk.EventClient implements it.
type Submitter interface {
	CreateEvents(ctx context.Context, events []*sdk.Event) (*sdk.BatchResult, error)
	SubmitEach(ctx context.Context, events []*sdk.Event) (*sdk.BatchResult, error)
}

// DeadLetterStore keeps messages the relay gave up on
type DeadLetterStore interface {
	Save(ctx context.Context, dl *database.DeadLetter) error
}

// Message outcomes, used as metric labels
const (
	OutcomeAcked        = "acked"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDuplicate    = "duplicate"
)

// Relay pulls deliveries from a Source and submits their events
type Relay struct {
	config    *Config
	source    Source
	submitter Submitter
	seen      cache.SeenSet
	store     DeadLetterStore
	metrics   *telemetry.Metrics
	stats     *Stats
	log       *logrus.Entry
	pending   func() (uint64, error)
}

// Option configures optional relay collaborators
type Option func(*Relay)

// WithSeenSet enables redelivery dedupe
func WithSeenSet(seen cache.SeenSet) Option {
	return func(r *Relay) { r.seen = seen }
}

// WithMetrics records Prometheus metrics
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option {
	return func(r *Relay) { r.log = l.WithField("component", "relay") }
}

// WithPending reports the stream backlog on every stats tick
func WithPending(fn func() (uint64, error)) Option {
	return func(r *Relay) { r.pending = fn }
}

// New creates a relay
func New(config *Config, source Source, submitter Submitter, store DeadLetterStore, opts ...Option) (*Relay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	if source == nil || submitter == nil || store == nil {
		return nil, errors.New("relay needs a source, a submitter and a dead-letter store")
	}
	r := &Relay{
		config:    config,
		source:    source,
		submitter: submitter,
		store:     store,
		stats:     NewStats(),
		log:       logrus.StandardLogger().WithField("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("relay_id", config.RelayID)
	return r, nil
}

// Stats returns the relay's counters
func (r *Relay) Stats() *Stats {
	return r.stats
}

// Run fetches and relays until ctx is done. Deliveries already fetched when
// ctx ends are finished before Run returns.
func (r *Relay) Run(ctx context.Context) error {
	r.log.WithFields(logrus.Fields{
		"mode":       r.config.Mode,
		"batch_size": r.config.BatchSize,
	}).Info("Relay starting")
	if r.metrics != nil {
		r.metrics.SetUp(true)
		defer r.metrics.SetUp(false)
	}

	statsTicker := time.NewTicker(r.config.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.reportStats()
			r.log.Info("Relay stopped")
			return nil
		case <-statsTicker.C:
			r.reportStats()
		default:
		}

		deliveries, err := r.source.Fetch(ctx, r.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.stats.RecordError(err)
			r.stats.SetHealthy(false)
			r.log.WithError(err).Warn("Failed to fetch messages")
			select {
			case <-ctx.Done():
			case <-time.After(r.config.ErrorBackoff):
			}
			continue
		}
		r.stats.SetHealthy(true)
		if len(deliveries) == 0 {
			continue
		}

		// Fetched messages are settled even after ctx is done
		r.Process(context.WithoutCancel(ctx), deliveries)
	}
}

// Process relays one fetched batch. Every delivery is settled exactly once:
// acked, handed back for redelivery, or dead-lettered.
func (r *Relay) Process(ctx context.Context, deliveries []Delivery) {
	ctx, span := telemetry.StartSpan(ctx, "relay.process",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(deliveries)),
			attribute.String("pio.relay.mode", r.config.Mode),
		))
	defer span.End()

	pending := make([]Delivery, 0, len(deliveries))
	for _, d := range deliveries {
		if err := d.DecodeErr(); err != nil {
			r.deadLetter(ctx, d, database.ReasonMalformed, err)
			continue
		}
		if r.alreadyDelivered(ctx, d) {
			r.settle(d, OutcomeDuplicate, d.Ack())
			continue
		}
		pending = append(pending, d)
	}

	for start := 0; start < len(pending); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		r.submit(ctx, pending[start:end])
	}
}

func (r *Relay) alreadyDelivered(ctx context.Context, d Delivery) bool {
	if r.seen == nil || d.NumDelivered() <= 1 {
		return false
	}
	seen, err := r.seen.Seen(ctx, d.ID())
	if err != nil {
		r.log.WithError(err).WithField("message_id", d.ID()).Warn("Dedupe lookup failed, resubmitting")
		return false
	}
	return seen
}

func (r *Relay) submit(ctx context.Context, chunk []Delivery) {
	events := make([]*sdk.Event, len(chunk))
	for i, d := range chunk {
		events[i] = d.Event()
	}

	start := time.Now()
	var result *sdk.BatchResult
	var err error
	if r.config.Mode == ModeEach {
		result, err = r.submitter.SubmitEach(ctx, events)
	} else {
		result, err = r.submitter.CreateEvents(ctx, events)
	}
	duration := time.Since(start)

	r.stats.RecordBatch(len(chunk), duration)
	if r.metrics != nil {
		r.metrics.RecordBatch(r.config.Mode, len(chunk), duration)
	}

	// Without a result the whole request failed and every item shares err
	if result == nil || len(result.Outcomes) != len(chunk) {
		if err == nil {
			err = fmt.Errorf("submitter returned %d outcomes for %d events", outcomeCount(result), len(chunk))
		}
		telemetry.SetErrorStatus(ctx, err)
		r.log.WithError(err).WithField("events", len(chunk)).Warn("Batch submission failed")
		for _, d := range chunk {
			r.fail(ctx, d, err)
		}
		return
	}

	for i, o := range result.Outcomes {
		if o.Err != nil {
			r.fail(ctx, chunk[i], o.Err)
			continue
		}
		r.succeed(ctx, chunk[i], o.EventID)
	}
}

func outcomeCount(result *sdk.BatchResult) int {
	if result == nil {
		return 0
	}
	return len(result.Outcomes)
}

func (r *Relay) succeed(ctx context.Context, d Delivery, eventID string) {
	if r.seen != nil {
		if err := r.seen.Mark(ctx, d.ID()); err != nil {
			r.log.WithError(err).WithField("message_id", d.ID()).Warn("Failed to mark message delivered")
		}
	}
	r.log.WithFields(logrus.Fields{
		"message_id": d.ID(),
		"event_id":   eventID,
	}).Debug("Event relayed")
	r.settle(d, OutcomeAcked, d.Ack())
}

// fail hands a retryable failure back for redelivery while attempts remain;
// everything else is dead-lettered.
func (r *Relay) fail(ctx context.Context, d Delivery, err error) {
	if Retryable(err) {
		if r.config.MaxDeliver < 0 || d.NumDelivered() < r.config.MaxDeliver {
			r.settle(d, OutcomeRetried, d.Nak(r.config.RetryDelay))
			return
		}
		r.deadLetter(ctx, d, database.ReasonRetriesExhausted, err)
		return
	}
	r.deadLetter(ctx, d, database.ReasonRejected, err)
}

func (r *Relay) deadLetter(ctx context.Context, d Delivery, reason string, cause error) {
	dl := &database.DeadLetter{
		MessageID:  d.ID(),
		Payload:    d.Data(),
		Reason:     reason,
		StatusCode: sdk.StatusCode(cause),
		ErrorMsg:   cause.Error(),
		Attempts:   d.NumDelivered(),
	}
	if dl.MessageID == "" {
		dl.MessageID = fmt.Sprintf("unidentified-%d", time.Now().UnixNano())
	}

	if err := r.store.Save(ctx, dl); err != nil {
		// Keep the message in the stream rather than lose it
		r.log.WithError(err).WithField("message_id", dl.MessageID).Error("Failed to store dead letter")
		r.stats.RecordError(err)
		r.settle(d, OutcomeRetried, d.Nak(r.config.RetryDelay))
		return
	}

	r.log.WithFields(logrus.Fields{
		"message_id": dl.MessageID,
		"reason":     reason,
		"status":     dl.StatusCode,
		"attempts":   dl.Attempts,
	}).WithError(cause).Warn("Message dead-lettered")
	if r.metrics != nil {
		r.metrics.RecordDeadLetter(reason)
	}
	r.settle(d, OutcomeDeadLettered, d.Term())
}

func (r *Relay) settle(d Delivery, outcome string, err error) {
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"message_id": d.ID(),
			"outcome":    outcome,
		}).Warn("Failed to settle message")
	}

	switch outcome {
	case OutcomeAcked:
		r.stats.RecordAck()
	case OutcomeRetried:
		r.stats.RecordRetry()
	case OutcomeDeadLettered:
		r.stats.RecordDeadLetter()
	case OutcomeDuplicate:
		r.stats.RecordDuplicate()
	}
	if r.metrics != nil {
		r.metrics.RecordMessage(outcome)
	}
}

// Retryable reports whether a failed submission may succeed if repeated.
// A 401 or 403 means the relay's access key is wrong, so the event itself is
// kept for redelivery.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if sdk.IsTransport(err) {
		return true
	}
	if sdk.IsProtocol(err) {
		switch status := sdk.StatusCode(err); {
		case status >= 500,
			status == http.StatusTooManyRequests,
			status == http.StatusUnauthorized,
			status == http.StatusForbidden:
			return true
		}
	}
	return false
}

func (r *Relay) reportStats() {
	if r.pending != nil && r.metrics != nil {
		if n, err := r.pending(); err == nil {
			r.metrics.SetPending(n)
		} else {
			r.log.WithError(err).Debug("Failed to read stream backlog")
		}
	}
	stats := r.stats.GetStats()
	r.log.WithFields(logrus.Fields{
		"processed":     stats["messages_processed"],
		"acked":         stats["acked"],
		"retried":       stats["retried"],
		"dead_lettered": stats["dead_lettered"],
		"duplicates":    stats["duplicates"],
	}).Info("Relay stats")
}
