package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/pio-go/sdk/testdata"
)

func viewEvents(uids ...string) []*Event {
	events := make([]*Event, len(uids))
	for i, uid := range uids {
		events[i] = &Event{
			Event:            "view",
			EntityType:       EntityUser,
			EntityID:         uid,
			TargetEntityType: EntityItem,
			TargetEntityID:   "i1",
			EventTime:        testdata.ReferenceTime,
		}
	}
	return events
}

// markInvalid makes the mock server reject the event.
func markInvalid(e *Event) *Event {
	e.Properties = map[string]interface{}{"invalid": true}
	return e
}

func TestCreateEvents_PreservesOrder(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)

	events := viewEvents(testdata.UserIDs(5)...)
	result, err := client.CreateEvents(ts.Context, events)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 5)
	assert.Equal(t, 0, result.Failed())

	// One request carrying every event in order
	reqs := ts.Server.GetRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/batch/events.json", reqs[0].Path)
	var sent []map[string]interface{}
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	require.Len(t, sent, 5)
	for i, e := range sent {
		assert.Equal(t, events[i].EntityID, e["entityId"])
	}

	for i, id := range result.EventIDs() {
		stored, err := client.GetEvent(ts.Context, id)
		require.NoError(t, err)
		assert.Equal(t, events[i].EntityID, stored.EntityID, "outcome %d", i)
	}
}

func TestCreateEvents_MiddleFailure(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)

	events := viewEvents("u1", "u2", "u3")
	markInvalid(events[1])

	result, err := client.CreateEvents(ts.Context, events)
	require.NotNil(t, result)
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, 1, batchErr.Failed)

	assert.NotEmpty(t, result.Outcomes[0].EventID)
	assert.NoError(t, result.Outcomes[0].Err)
	assert.NotEmpty(t, result.Outcomes[2].EventID)
	assert.NoError(t, result.Outcomes[2].Err)

	itemErr := result.Outcomes[1].Err
	assert.Empty(t, result.Outcomes[1].EventID)
	assert.True(t, IsProtocol(itemErr))
	assert.Equal(t, http.StatusBadRequest, StatusCode(itemErr))
	assert.Contains(t, ResponseBody(itemErr), "invalid property")

	var sdkErr *Error
	require.True(t, errors.As(itemErr, &sdkErr))
	assert.Equal(t, "invalid property", sdkErr.Message)
}

func TestCreateEvents_Oversized(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)

	events := viewEvents(testdata.UserIDs(testdata.MaxBatchSize + 1)...)
	result, err := client.CreateEvents(ts.Context, events)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, IsProtocol(err))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Contains(t, ResponseBody(err), "less than or equal to 50")
	assert.Equal(t, 0, ts.Server.EventCount())
}

func TestCreateEvents_LengthMismatch(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	ts.Server.WithRawResponse("POST /batch/events.json", http.StatusOK, `[{"status":201,"eventId":"a"}]`)
	client := newTestEventClient(t, ts, nil)

	_, err := client.CreateEvents(ts.Context, viewEvents("u1", "u2"))
	require.Error(t, err)
	assert.True(t, IsDecode(err))
}

func TestCreateEvents_MalformedItems(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	ts.Server.WithRawResponse("POST /batch/events.json", http.StatusOK,
		`[{"status":201,"eventId":"a"},{"status":201},"nonsense"]`)
	client := newTestEventClient(t, ts, nil)

	result, err := client.CreateEvents(ts.Context, viewEvents("u1", "u2", "u3"))
	require.NotNil(t, result)
	require.Error(t, err)

	assert.Equal(t, "a", result.Outcomes[0].EventID)
	assert.True(t, IsDecode(result.Outcomes[1].Err))
	assert.True(t, IsDecode(result.Outcomes[2].Err))
	assert.Equal(t, `"nonsense"`, ResponseBody(result.Outcomes[2].Err))
	assert.Equal(t, 2, result.Failed())
}

func TestCreateEvents_Validation(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, nil)

	_, err := client.CreateEventsAsync(ts.Context, nil)
	assert.ErrorIs(t, err, ErrEmptyList)

	events := viewEvents("u1", "u2", "u3")
	events[2].EntityID = ""
	_, err = client.CreateEventsAsync(ts.Context, events)
	require.Error(t, err)
	assert.True(t, IsUsage(err))

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 2, batchErr.Index)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	assert.Equal(t, 0, ts.Server.GetRequestCount())
}

func TestSubmitEach_PreservesOrder(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	// Later requests finish first
	var delay = map[string]time.Duration{"u1": 80 * time.Millisecond, "u2": 40 * time.Millisecond}
	ts.Server.RegisterHandler("POST /events.json", func(w http.ResponseWriter, r *http.Request, body []byte) (int, interface{}) {
		var e map[string]interface{}
		json.Unmarshal(body, &e)
		uid, _ := e["entityId"].(string)
		time.Sleep(delay[uid])
		return http.StatusCreated, map[string]string{"eventId": "id-" + uid}
	})
	client := newTestEventClient(t, ts, func(c *Config) { c.MaxConcurrentConnections = 5 })

	uids := testdata.UserIDs(5)
	result, err := client.SubmitEach(ts.Context, viewEvents(uids...))
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 5)
	for i, uid := range uids {
		assert.Equal(t, "id-"+uid, result.Outcomes[i].EventID)
	}
	assert.Equal(t, 5, ts.Server.GetRequestCount())
}

func TestSubmitEach_MiddleFailure(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	client := newTestEventClient(t, ts, func(c *Config) { c.MaxConcurrentConnections = 3 })

	events := viewEvents("u1", "u2", "u3")
	markInvalid(events[1])

	result, err := client.SubmitEach(ts.Context, events)
	require.NotNil(t, result)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)

	assert.NoError(t, result.Outcomes[0].Err)
	assert.NoError(t, result.Outcomes[2].Err)
	assert.True(t, IsProtocol(result.Outcomes[1].Err))
	assert.Equal(t, http.StatusBadRequest, StatusCode(result.Outcomes[1].Err))

	// Every request was sent despite the failure
	assert.Equal(t, 3, ts.Server.GetRequestCount())
	assert.Equal(t, 2, ts.Server.EventCount())
}

func TestSubmitEach_SharesConcurrencyBound(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	ts.Server.SetLatency(20 * time.Millisecond)
	client := newTestEventClient(t, ts, func(c *Config) { c.MaxConcurrentConnections = 2 })

	batch, err := client.SubmitEachAsync(ts.Context, viewEvents(testdata.UserIDs(6)...))
	require.NoError(t, err)
	assert.Equal(t, 6, batch.Len())

	result, err := batch.Wait(ts.Context)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed())
	assert.LessOrEqual(t, ts.Server.PeakInFlight(), 2)
}

func TestSubmitEach_QueueFullRecordedAtIndex(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	ts.Server.SetLatency(50 * time.Millisecond)
	client := newTestEventClient(t, ts, func(c *Config) {
		c.MaxConcurrentConnections = 1
		c.QueueDepth = 1
	})

	batch, err := client.SubmitEachAsync(ts.Context, viewEvents("u1", "u2", "u3"))
	require.NoError(t, err)
	assert.Nil(t, batch.Result(2))

	result, err := batch.Wait(ts.Context)
	require.NoError(t, err)
	assert.NoError(t, result.Outcomes[0].Err)
	assert.NoError(t, result.Outcomes[1].Err)
	assert.ErrorIs(t, result.Outcomes[2].Err, ErrQueueFull)

	var batchErr *BatchError
	require.ErrorAs(t, result.Err(), &batchErr)
	assert.Equal(t, 2, batchErr.Index)
}

func TestBatch_WaitContextCancelsRest(t *testing.T) {
	ts := testdata.NewTestSuite(t, testAccessKey)
	ts.Server.SetLatency(time.Second)
	client := newTestEventClient(t, ts, nil)

	batch, err := client.SubmitEachAsync(context.Background(), viewEvents("u1", "u2", "u3"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = batch.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	for i := 0; i < batch.Len(); i++ {
		res := batch.Result(i)
		_, err := res.GetTimeout(time.Second)
		assert.ErrorIs(t, err, ErrCancelled, "event %d", i)
	}
}

func TestBatchResult_Err(t *testing.T) {
	ok := &BatchResult{Outcomes: []Outcome{{EventID: "a"}, {EventID: "b"}}}
	assert.NoError(t, ok.Err())
	assert.Equal(t, []string{"a", "b"}, ok.EventIDs())

	first := errors.New("first")
	failed := &BatchResult{Outcomes: []Outcome{{EventID: "a"}, {Err: first}, {Err: errors.New("second")}}}
	err := failed.Err()

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, 2, batchErr.Failed)
	assert.ErrorIs(t, err, first)
	assert.Contains(t, err.Error(), "2 failures total")
}

func completedBatch(n int) *Batch {
	b := &Batch{results: make([]*Result[string], n), errs: make([]error, n)}
	for i := range b.results {
		f := newFuture("events.create", func() {})
		f.complete(&RawResponse{StatusCode: http.StatusCreated, Body: []byte(`{"eventId":"ev"}`)})
		b.results[i] = newResult(f, decodeEventID("events.create"))
	}
	return b
}

func TestBatch_WaitDoneContextKeepsCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for round := 0; round < 20; round++ {
		result, err := completedBatch(20).Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Failed(), "round %d", round)
		for _, id := range result.EventIDs() {
			assert.Equal(t, "ev", id)
		}
	}
}

func TestBatch_WaitContextErrorIsTyped(t *testing.T) {
	b := completedBatch(2)
	pending := newFuture("events.create", func() {})
	b.results = append(b.results, newResult(pending, decodeEventID("events.create")))
	b.errs = append(b.errs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Wait(ctx)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, pending.IsCancelled())
}
