package api

import (
	"encoding/json"
	"time"

	"github.com/birbparty/pio-go/internal/database"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
}

// DeadLetterResponse is one dead letter. Payload is inlined when it is
// valid JSON and carried as a string otherwise.
type DeadLetterResponse struct {
	ID         int64           `json:"id"`
	MessageID  string          `json:"message_id"`
	Reason     string          `json:"reason"`
	StatusCode int             `json:"status_code,omitempty"`
	Error      string          `json:"error"`
	Attempts   int             `json:"attempts"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DeadLetterListResponse represents a page of dead letters
type DeadLetterListResponse struct {
	DeadLetters []*DeadLetterResponse `json:"dead_letters"`
	TotalCount  int64                 `json:"total_count"`
	Offset      int                   `json:"offset"`
	Limit       int                   `json:"limit"`
}

// ReplayResponse reports a dead letter put back on the queue
type ReplayResponse struct {
	DeadLetterID int64  `json:"dead_letter_id"`
	MessageID    string `json:"message_id"`
}

// Error codes
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeUnprocessable  = "UNPROCESSABLE"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(err string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: err,
		Code:  code,
	}
}

// NewErrorResponseWithDetails creates a new error response with details
func NewErrorResponseWithDetails(err string, code string, details string) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Code:    code,
		Details: details,
	}
}

// ConvertToDeadLetterResponse converts a stored dead letter to its API form
func ConvertToDeadLetterResponse(dl *database.DeadLetter) *DeadLetterResponse {
	payload := json.RawMessage(dl.Payload)
	if !json.Valid(dl.Payload) {
		quoted, _ := json.Marshal(string(dl.Payload))
		payload = quoted
	}
	return &DeadLetterResponse{
		ID:         dl.ID,
		MessageID:  dl.MessageID,
		Reason:     dl.Reason,
		StatusCode: dl.StatusCode,
		Error:      dl.ErrorMsg,
		Attempts:   dl.Attempts,
		Payload:    payload,
		CreatedAt:  dl.CreatedAt,
		UpdatedAt:  dl.UpdatedAt,
	}
}
