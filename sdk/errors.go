package sdk

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Every error returned by the SDK that corresponds to one of
// these conditions matches it with errors.Is.
//
//	id, err := client.CreateEvent(ctx, event)
//	switch {
//	case errors.Is(err, sdk.ErrTimeout):
//	    // no response within Config.Timeout
//	case sdk.IsProtocol(err):
//	    log.Printf("rejected with %d: %s", sdk.StatusCode(err), sdk.ResponseBody(err))
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidURL is returned when a request URL is not absolute
	ErrInvalidURL = errors.New("invalid request URL")

	// ErrInvalidEvent is returned when an event lacks a required field
	ErrInvalidEvent = errors.New("invalid event")

	// ErrEmptyList is returned when an operation requires a non-empty list
	ErrEmptyList = errors.New("list cannot be empty")

	// ErrUnidentifiedActor is returned when an operation acting on behalf of
	// a user is invoked before the user was identified
	ErrUnidentifiedActor = errors.New("actor has not been identified")

	// ErrClientClosed is returned when a request is submitted to a closed client
	ErrClientClosed = errors.New("client is closed")

	// ErrQueueFull is returned when the request queue is at QueueDepth
	ErrQueueFull = errors.New("request queue is full")

	// ErrTimeout is returned when a request exceeds Config.Timeout
	ErrTimeout = errors.New("request timeout")

	// ErrCancelled is returned when a request was cancelled before a response arrived
	ErrCancelled = errors.New("request cancelled")

	// ErrWaitTimeout is returned by GetTimeout when the result is not ready in
	// time. The request itself keeps running.
	ErrWaitTimeout = errors.New("timed out waiting for response")
)

// ErrorType categorizes SDK errors.
type ErrorType int

const (
	// ErrorTypeTransport means no HTTP response was obtained: connection
	// failure, timeout, or cancellation.
	ErrorTypeTransport ErrorType = iota + 1
	// ErrorTypeProtocol means the service answered with an unexpected status.
	ErrorTypeProtocol
	// ErrorTypeDecode means the response body did not have the expected shape.
	ErrorTypeDecode
	// ErrorTypeUsage means the caller violated a precondition. Usage errors
	// are returned synchronously, before any request is sent.
	ErrorTypeUsage
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by every SDK operation.
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) && sdkErr.Type == sdk.ErrorTypeProtocol {
//	    log.Printf("status %d body %q", sdkErr.StatusCode, sdkErr.Body)
//	}
type Error struct {
	// Type categorizes the error
	Type ErrorType
	// Op is the operation that failed, e.g. "events.create"
	Op string
	// StatusCode is the HTTP status for protocol errors, zero otherwise
	StatusCode int
	// Body is the verbatim response body for protocol and decode errors
	Body string
	// Message is a human-readable description
	Message string
	// Timestamp is when the error occurred
	Timestamp time.Time

	wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var msg string
	switch {
	case e.Type == ErrorTypeProtocol:
		msg = fmt.Sprintf("%s error: status %d: %s", e.Type, e.StatusCode, e.Body)
	case e.Message != "":
		msg = fmt.Sprintf("%s error: %s", e.Type, e.Message)
	case e.wrapped != nil:
		msg = fmt.Sprintf("%s error: %v", e.Type, e.wrapped)
	default:
		msg = fmt.Sprintf("%s error", e.Type)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

func newError(errType ErrorType, op, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Op:        op,
		Message:   message,
		Timestamp: time.Now(),
		wrapped:   wrapped,
	}
}

func transportError(op string, wrapped error) *Error {
	msg := ""
	if wrapped != nil {
		msg = wrapped.Error()
	}
	return newError(ErrorTypeTransport, op, msg, wrapped)
}

func protocolError(op string, status int, body []byte) *Error {
	err := newError(ErrorTypeProtocol, op, "", nil)
	err.StatusCode = status
	err.Body = string(body)
	return err
}

func decodeError(op string, body []byte, wrapped error) *Error {
	msg := ""
	if wrapped != nil {
		msg = wrapped.Error()
	}
	err := newError(ErrorTypeDecode, op, msg, wrapped)
	err.Body = string(body)
	return err
}

func usageError(op string, wrapped error, format string, args ...interface{}) *Error {
	return newError(ErrorTypeUsage, op, fmt.Sprintf(format, args...), wrapped)
}

// BatchError reports the first failing item of a batch submission.
type BatchError struct {
	// Index is the position of the failing event in the submitted list
	Index int
	// Failed is the total number of failed items
	Failed int
	// Err is the error of the item at Index
	Err error
}

// Error implements the error interface
func (e *BatchError) Error() string {
	if e.Failed > 1 {
		return fmt.Sprintf("batch item %d failed (%d failures total): %v", e.Index, e.Failed, e.Err)
	}
	return fmt.Sprintf("batch item %d failed: %v", e.Index, e.Err)
}

// Unwrap returns the error of the failing item
func (e *BatchError) Unwrap() error {
	return e.Err
}

func errorType(err error) ErrorType {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Type
	}
	return 0
}

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool { return errorType(err) == ErrorTypeTransport }

// IsProtocol reports whether err is a protocol error.
func IsProtocol(err error) bool { return errorType(err) == ErrorTypeProtocol }

// IsDecode reports whether err is a decode error.
func IsDecode(err error) bool { return errorType(err) == ErrorTypeDecode }

// IsUsage reports whether err is a usage error.
func IsUsage(err error) bool { return errorType(err) == ErrorTypeUsage }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.StatusCode
	}
	return 0
}

// ResponseBody returns the raw response body carried by err, or "".
func ResponseBody(err error) string {
	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Body
	}
	return ""
}
