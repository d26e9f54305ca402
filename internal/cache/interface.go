// Package cache remembers which queued messages have already been delivered.
package cache

import (
	"context"
)

// SeenSet records message ids that were delivered successfully so that a
// redelivered copy can be acknowledged without resubmitting it.
type SeenSet interface {
	// Seen reports whether id was marked and has not expired
	Seen(ctx context.Context, id string) (bool, error)

	// Mark records id. Marking an id twice is not an error.
	Mark(ctx context.Context, id string) error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the connection
	Close() error
}

// Common errors
var (
	ErrEmptyID = NewCacheError("message id cannot be empty", false)
)

// CacheError represents a cache-specific error
type CacheError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewCacheError creates a new cache error
func NewCacheError(message string, retryable bool) *CacheError {
	return &CacheError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Underlying
}

// WithError adds an underlying error
func (e *CacheError) WithError(err error) *CacheError {
	e.Underlying = err
	return e
}

// IsRetryable returns whether the error is retryable
func (e *CacheError) IsRetryable() bool {
	return e.Retryable
}
