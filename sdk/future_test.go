package sdk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_StateString(t *testing.T) {
	tests := []struct {
		state FutureState
		want  string
	}{
		{StatePending, "pending"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{StateCancelled, "cancelled"},
		{FutureState(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestFuture_WriteOnce(t *testing.T) {
	f := newFuture("test", func() {})
	assert.Equal(t, StatePending, f.State())
	assert.False(t, f.IsDone())

	first := &RawResponse{StatusCode: 200, Body: []byte("first")}
	assert.True(t, f.complete(first))
	assert.False(t, f.complete(&RawResponse{StatusCode: 500}))
	assert.False(t, f.fail(errors.New("late")))
	assert.False(t, f.Cancel())

	resp, err := f.Get()
	require.NoError(t, err)
	assert.Same(t, first, resp)
	assert.Equal(t, StateCompleted, f.State())
	assert.True(t, f.IsDone())
}

func TestFuture_ConcurrentSettle(t *testing.T) {
	f := newFuture("test", func() {})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			switch i % 3 {
			case 0:
				ok = f.complete(&RawResponse{StatusCode: 200})
			case 1:
				ok = f.fail(errors.New("boom"))
			default:
				ok = f.Cancel()
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, f.IsDone())
}

func TestFuture_Fail(t *testing.T) {
	f := newFuture("test", func() {})
	cause := transportError("test", errors.New("connection reset"))
	f.fail(cause)

	resp, err := f.Get()
	assert.Nil(t, resp)
	assert.Same(t, cause, err)
	assert.Equal(t, StateFailed, f.State())
	assert.False(t, f.IsCancelled())
}

func TestFuture_CancelInvokesCancelFunc(t *testing.T) {
	var called atomic.Bool
	f := newFuture("test", func() { called.Store(true) })

	assert.True(t, f.Cancel())
	assert.True(t, called.Load())
	assert.True(t, f.IsCancelled())
	assert.True(t, f.IsDone())

	_, err := f.Get()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsTransport(err))
}

func TestFuture_GetTimeoutDoesNotCancel(t *testing.T) {
	f := newFuture("test", func() {})

	_, err := f.GetTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Equal(t, StatePending, f.State())

	f.complete(&RawResponse{StatusCode: 201})
	resp, err := f.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
}

func TestFuture_WaitContext(t *testing.T) {
	f := newFuture("test", func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransport(err))
	assert.False(t, f.IsDone(), "an expired wait leaves the request running")

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.complete(&RawResponse{StatusCode: 200})
	}()
	resp, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestFuture_OnComplete(t *testing.T) {
	f := newFuture("test", func() {})

	var order []int
	var mu sync.Mutex
	record := func(i int) func(*Future) {
		return func(got *Future) {
			assert.Same(t, f, got)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}
	}

	f.OnComplete(record(1))
	f.OnComplete(record(2))
	f.complete(&RawResponse{StatusCode: 200})
	f.complete(&RawResponse{StatusCode: 500})

	// Registered after completion: runs immediately
	f.OnComplete(record(3))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFuture_Done(t *testing.T) {
	f := newFuture("test", func() {})
	select {
	case <-f.Done():
		t.Fatal("pending future reported done")
	default:
	}

	f.fail(errors.New("x"))
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}
