package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// FutureState is the lifecycle state of a Future.
type FutureState int

const (
	// StatePending means no response has been produced yet
	StatePending FutureState = iota
	// StateCompleted means a RawResponse is available
	StateCompleted
	// StateFailed means the request failed without a response
	StateFailed
	// StateCancelled means Cancel was called before a response arrived
	StateCancelled
)

// String returns the string representation of the state
func (s FutureState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Future is the handle of one in-flight request. It reaches exactly one
// terminal state (completed, failed or cancelled), exactly once.
//
// Futures are returned immediately by the async client methods; the only
// blocking calls are Get, GetTimeout and Wait.
type Future struct {
	op     string
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	state     FutureState
	resp      *RawResponse
	err       error
	listeners []func(*Future)
}

func newFuture(op string, cancel context.CancelFunc) *Future {
	return &Future{
		op:     op,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// complete stores resp unless the future is already terminal.
func (f *Future) complete(resp *RawResponse) bool {
	return f.settle(StateCompleted, resp, nil)
}

// fail stores err unless the future is already terminal.
func (f *Future) fail(err error) bool {
	return f.settle(StateFailed, nil, err)
}

func (f *Future) settle(state FutureState, resp *RawResponse, err error) bool {
	f.mu.Lock()
	if f.state != StatePending {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.resp = resp
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(f)
	}
	return true
}

// Cancel aborts the request if no response has been produced yet and moves
// the future to the cancelled state. It returns false if the future was
// already terminal, in which case nothing changes.
func (f *Future) Cancel() bool {
	if !f.settle(StateCancelled, nil, transportError(f.op, ErrCancelled)) {
		return false
	}
	f.cancel()
	return true
}

// Get blocks until the future is terminal and returns the response or the
// transport error.
func (f *Future) Get() (*RawResponse, error) {
	<-f.done
	return f.result()
}

// GetTimeout is like Get but gives up after d with a transport error
// matching ErrWaitTimeout. It does not cancel the request.
func (f *Future) GetTimeout(d time.Duration) (*RawResponse, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result()
	case <-timer.C:
		if f.IsDone() {
			return f.result()
		}
		return nil, transportError(f.op, ErrWaitTimeout)
	}
}

// Wait blocks until the future is terminal or ctx is done. A response that
// is already available is returned even if ctx is done. Otherwise a done
// context yields a transport error matching both ctx.Err() and ErrTimeout or
// ErrCancelled, and the request keeps running.
func (f *Future) Wait(ctx context.Context) (*RawResponse, error) {
	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		if f.IsDone() {
			return f.result()
		}
		return nil, waitError(f.op, ctx.Err())
	}
}

// waitError reports a wait abandoned because ctx ended first.
func waitError(op string, ctxErr error) error {
	sentinel := ErrCancelled
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		sentinel = ErrTimeout
	}
	return transportError(op, fmt.Errorf("%w: %w", sentinel, ctxErr))
}

func (f *Future) result() (*RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resp, f.err
}

// Done returns a channel closed when the future becomes terminal.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is terminal.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether the future was cancelled.
func (f *Future) IsCancelled() bool {
	return f.State() == StateCancelled
}

// State returns the current state.
func (f *Future) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnComplete registers fn to run exactly once after the future becomes
// terminal. Listeners registered before completion run in registration order
// on the goroutine that completes the future; a listener registered after
// completion runs immediately on the caller's goroutine. Listeners must not
// block.
func (f *Future) OnComplete(fn func(*Future)) {
	f.mu.Lock()
	if f.state == StatePending {
		f.listeners = append(f.listeners, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f)
}
