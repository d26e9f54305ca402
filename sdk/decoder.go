package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DecodeFunc turns a raw response into a typed value or an error. Decoders
// are pure: decoding the same RawResponse twice yields equal results.
type DecodeFunc[T any] func(resp *RawResponse) (T, error)

// Result is the typed handle returned by the async client methods. It wraps
// the request's Future and runs the endpoint's decoder when the value is
// first read.
type Result[T any] struct {
	future *Future
	decode DecodeFunc[T]

	once  sync.Once
	value T
	err   error
}

func newResult[T any](future *Future, decode DecodeFunc[T]) *Result[T] {
	return &Result[T]{future: future, decode: decode}
}

// Get blocks until the request is terminal and returns the decoded value.
func (r *Result[T]) Get() (T, error) {
	<-r.future.Done()
	return r.resolve()
}

// GetTimeout is like Get but returns ErrWaitTimeout if the request is not
// terminal within d. The request keeps running.
func (r *Result[T]) GetTimeout(d time.Duration) (T, error) {
	if _, err := r.future.GetTimeout(d); errors.Is(err, ErrWaitTimeout) {
		var zero T
		return zero, err
	}
	return r.resolve()
}

// Wait blocks until the request is terminal or ctx is done. A completed
// request is always decoded, even when ctx is already done. Otherwise the
// wait fails with a transport error (see Future.Wait) and the request keeps
// running; use Cancel to abort it.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	if _, err := r.future.Wait(ctx); err != nil && !r.future.IsDone() {
		var zero T
		return zero, err
	}
	return r.resolve()
}

func (r *Result[T]) resolve() (T, error) {
	r.once.Do(func() {
		resp, err := r.future.result()
		if err != nil {
			r.err = err
			return
		}
		r.value, r.err = r.decode(resp)
	})
	return r.value, r.err
}

// OnComplete registers fn to receive the decoded value once the request is
// terminal. See Future.OnComplete for ordering rules.
func (r *Result[T]) OnComplete(fn func(T, error)) {
	r.future.OnComplete(func(*Future) {
		fn(r.resolve())
	})
}

// Cancel aborts the request if it has not produced a response yet.
func (r *Result[T]) Cancel() bool { return r.future.Cancel() }

// IsDone reports whether the request is terminal.
func (r *Result[T]) IsDone() bool { return r.future.IsDone() }

// IsCancelled reports whether the request was cancelled.
func (r *Result[T]) IsCancelled() bool { return r.future.IsCancelled() }

// Done returns a channel closed when the request is terminal.
func (r *Result[T]) Done() <-chan struct{} { return r.future.Done() }

// Raw returns the underlying Future.
func (r *Result[T]) Raw() *Future { return r.future }

// expectStatus returns a protocol error unless resp has status want.
func expectStatus(op string, resp *RawResponse, want int) error {
	if resp.StatusCode != want {
		return protocolError(op, resp.StatusCode, resp.Body)
	}
	return nil
}

// decodeJSON decodes a body with status want into T.
func decodeJSON[T any](op string, want int) DecodeFunc[T] {
	return func(resp *RawResponse) (T, error) {
		var out T
		if err := expectStatus(op, resp, want); err != nil {
			return out, err
		}
		if err := unmarshalStrict(resp.Body, &out); err != nil {
			return out, decodeError(op, resp.Body, err)
		}
		return out, nil
	}
}

type eventIDResponse struct {
	EventID *string `json:"eventId"`
}

// decodeEventID extracts the eventId of a 201 Created response.
func decodeEventID(op string) DecodeFunc[string] {
	return func(resp *RawResponse) (string, error) {
		if err := expectStatus(op, resp, 201); err != nil {
			return "", err
		}
		var body eventIDResponse
		if err := unmarshalStrict(resp.Body, &body); err != nil {
			return "", decodeError(op, resp.Body, err)
		}
		if body.EventID == nil || *body.EventID == "" {
			return "", decodeError(op, resp.Body, fmt.Errorf("response has no eventId"))
		}
		return *body.EventID, nil
	}
}

// decodeStatus accepts any 200 response and returns its body text.
func decodeStatus(op string) DecodeFunc[string] {
	return func(resp *RawResponse) (string, error) {
		if err := expectStatus(op, resp, 200); err != nil {
			return "", err
		}
		return string(resp.Body), nil
	}
}

// unmarshalStrict rejects empty bodies and trailing garbage, which
// json.Unmarshal into a pointer would otherwise turn into zero values.
func unmarshalStrict(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
