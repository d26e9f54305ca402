package database

import (
	"errors"
	"time"
)

// Dead-letter reasons
const (
	ReasonMalformed        = "malformed"
	ReasonRejected         = "rejected"
	ReasonRetriesExhausted = "retries_exhausted"
)

// ErrNotFound is returned when a dead letter does not exist
var ErrNotFound = errors.New("dead letter not found")

// DeadLetter is a queued message the relay gave up on, kept for inspection
// and replay.
type DeadLetter struct {
	ID         int64     `db:"id" json:"id"`
	MessageID  string    `db:"message_id" json:"message_id"`
	Payload    []byte    `db:"payload" json:"payload"`
	Reason     string    `db:"reason" json:"reason"`
	StatusCode int       `db:"status_code" json:"status_code,omitempty"`
	ErrorMsg   string    `db:"error_message" json:"error_message"`
	Attempts   int       `db:"attempts" json:"attempts"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
