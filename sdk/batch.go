package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Outcome is the result for one event of a batch.
type Outcome struct {
	EventID string
	Err     error
}

// BatchResult holds one Outcome per submitted event, index-aligned with the
// submitted list.
type BatchResult struct {
	Outcomes []Outcome
}

// EventIDs returns the event ids in submission order. Failed items have an
// empty id.
func (r *BatchResult) EventIDs() []string {
	ids := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		ids[i] = o.EventID
	}
	return ids
}

// Failed returns the number of failed items.
func (r *BatchResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Err returns a *BatchError for the first failed item, or nil.
func (r *BatchResult) Err() error {
	for i, o := range r.Outcomes {
		if o.Err != nil {
			return &BatchError{Index: i, Failed: r.Failed(), Err: o.Err}
		}
	}
	return nil
}

func validateBatch(op string, events []*Event) error {
	if len(events) == 0 {
		return usageError(op, ErrEmptyList, "event list cannot be empty")
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return usageError(op, &BatchError{Index: i, Failed: 1, Err: err}, "event %d: %v", i, err)
		}
	}
	return nil
}

// batchItem is one element of the batch endpoint's response array.
type batchItem struct {
	Status  int    `json:"status"`
	EventID string `json:"eventId"`
	Message string `json:"message"`
}

// CreateEventsAsync sends all events in one POST /batch/events.json request.
// The server limits the batch size; an oversized batch is rejected by the
// server and reported as a protocol error carrying its message.
func (c *EventClient) CreateEventsAsync(ctx context.Context, events []*Event) (*Result[*BatchResult], error) {
	const op = "events.batch"
	if err := validateBatch(op, events); err != nil {
		return nil, err
	}
	future, err := c.postJSON(ctx, op, c.url("/batch/events.json", c.keyQuery()), events)
	if err != nil {
		return nil, err
	}
	return newResult(future, decodeBatch(op, len(events))), nil
}

// CreateEvents sends all events in one batch request. The returned
// BatchResult is non-nil whenever the batch request itself succeeded; the
// error is then the BatchResult's Err.
func (c *EventClient) CreateEvents(ctx context.Context, events []*Event) (*BatchResult, error) {
	res, err := c.CreateEventsAsync(ctx, events)
	if err != nil {
		return nil, err
	}
	result, err := res.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result, result.Err()
}

func decodeBatch(op string, n int) DecodeFunc[*BatchResult] {
	return func(resp *RawResponse) (*BatchResult, error) {
		if err := expectStatus(op, resp, http.StatusOK); err != nil {
			return nil, err
		}
		var items []json.RawMessage
		if err := unmarshalStrict(resp.Body, &items); err != nil {
			return nil, decodeError(op, resp.Body, err)
		}
		if len(items) != n {
			return nil, decodeError(op, resp.Body, fmt.Errorf("expected %d results, got %d", n, len(items)))
		}

		result := &BatchResult{Outcomes: make([]Outcome, n)}
		for i, raw := range items {
			var item batchItem
			if err := json.Unmarshal(raw, &item); err != nil {
				result.Outcomes[i].Err = decodeError(op, raw, fmt.Errorf("item %d: %w", i, err))
				continue
			}
			switch {
			case item.Status == http.StatusCreated && item.EventID != "":
				result.Outcomes[i].EventID = item.EventID
			case item.Status == http.StatusCreated:
				result.Outcomes[i].Err = decodeError(op, raw, fmt.Errorf("item %d has no eventId", i))
			default:
				perr := protocolError(op, item.Status, raw)
				perr.Message = item.Message
				result.Outcomes[i].Err = perr
			}
		}
		return result, nil
	}
}

// Batch tracks one independent request per event.
type Batch struct {
	results []*Result[string]
	errs    []error
}

// SubmitEachAsync submits one create-event request per event, all sharing
// the client's concurrency bound. Every event is validated before any is
// submitted. An event rejected at submission, for example by a full queue,
// is recorded as failed at its index.
func (c *EventClient) SubmitEachAsync(ctx context.Context, events []*Event) (*Batch, error) {
	const op = "events.each"
	if err := validateBatch(op, events); err != nil {
		return nil, err
	}

	b := &Batch{
		results: make([]*Result[string], len(events)),
		errs:    make([]error, len(events)),
	}
	for i, e := range events {
		res, err := c.CreateEventAsync(ctx, e)
		if err != nil {
			b.errs[i] = err
			continue
		}
		b.results[i] = res
	}
	return b, nil
}

// SubmitEach submits one request per event and waits for all of them.
func (c *EventClient) SubmitEach(ctx context.Context, events []*Event) (*BatchResult, error) {
	b, err := c.SubmitEachAsync(ctx, events)
	if err != nil {
		return nil, err
	}
	result, err := b.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result, result.Err()
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int { return len(b.results) }

// Result returns the handle of event i, or nil if it was never submitted.
func (b *Batch) Result(i int) *Result[string] { return b.results[i] }

// Wait waits for every request, in submission order, and collects their
// outcomes. All requests are drained even when some fail. If ctx is done
// first, the requests still pending are cancelled and the wait error is
// returned. Requests that already completed are reported as usual.
func (b *Batch) Wait(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{Outcomes: make([]Outcome, len(b.results))}
	for i, res := range b.results {
		if res == nil {
			result.Outcomes[i].Err = b.errs[i]
			continue
		}
		if _, err := res.Wait(ctx); !res.IsDone() {
			b.Cancel()
			return nil, err
		}
		id, err := res.resolve()
		result.Outcomes[i] = Outcome{EventID: id, Err: err}
	}
	return result, nil
}

// Cancel cancels every request that has not completed. Completed requests
// are unaffected.
func (b *Batch) Cancel() {
	for _, res := range b.results {
		if res != nil {
			res.Cancel()
		}
	}
}
