package relay

import (
	"sync"
	"time"
)

// Stats holds in-process relay counters, reported in the periodic log line
// and on the admin /stats endpoint.
type Stats struct {
	mu sync.RWMutex

	// Message outcomes
	messagesProcessed int64
	acked             int64
	retried           int64
	deadLettered      int64
	duplicates        int64

	// Batch metrics
	batchesSubmitted int64
	submitTime       time.Duration
	avgBatchSize     float64

	// Relay status
	startTime       time.Time
	lastProcessedAt time.Time
	lastError       string
	isHealthy       bool
}

// NewStats creates a new stats instance
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
		isHealthy: true,
	}
}

func (s *Stats) record(counter *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter++
	s.messagesProcessed++
	s.lastProcessedAt = time.Now()
}

// RecordAck records a delivered message
func (s *Stats) RecordAck() { s.record(&s.acked) }

// RecordRetry records a message handed back for redelivery
func (s *Stats) RecordRetry() { s.record(&s.retried) }

// RecordDeadLetter records a message that was given up on
func (s *Stats) RecordDeadLetter() { s.record(&s.deadLettered) }

// RecordDuplicate records a redelivered message that was already delivered
func (s *Stats) RecordDuplicate() { s.record(&s.duplicates) }

// RecordBatch records one submission to the event server
func (s *Stats) RecordBatch(size int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batchesSubmitted++
	s.submitTime += duration
	s.avgBatchSize += (float64(size) - s.avgBatchSize) / float64(s.batchesSubmitted)
}

// RecordError remembers the most recent relay-level error
func (s *Stats) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
}

// GetStats returns current stats
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sinceLast := time.Duration(0)
	if !s.lastProcessedAt.IsZero() {
		sinceLast = time.Since(s.lastProcessedAt)
	}
	avgSubmit := float64(0)
	if s.batchesSubmitted > 0 {
		avgSubmit = float64(s.submitTime.Milliseconds()) / float64(s.batchesSubmitted)
	}

	return map[string]interface{}{
		"uptime_seconds":        time.Since(s.startTime).Seconds(),
		"messages_processed":    s.messagesProcessed,
		"acked":                 s.acked,
		"retried":               s.retried,
		"dead_lettered":         s.deadLettered,
		"duplicates":            s.duplicates,
		"batches_submitted":     s.batchesSubmitted,
		"avg_batch_size":        s.avgBatchSize,
		"avg_submit_time_ms":    avgSubmit,
		"last_processed_ago_ms": sinceLast.Milliseconds(),
		"last_error":            s.lastError,
		"is_healthy":            s.isHealthy,
	}
}

// SetHealthy sets the health status
func (s *Stats) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isHealthy = healthy
}

// IsHealthy returns the health status
func (s *Stats) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHealthy
}
