package main

import (
	"context"
	"fmt"
	"io"

	"github.com/birbparty/pio-go/internal/database"
	"github.com/birbparty/pio-go/internal/queue"
	"github.com/birbparty/pio-go/internal/relay"
	"github.com/birbparty/pio-go/sdk"
)

// deadLetters is the part of *database.DeadLetterRepository used by replay
type deadLetters interface {
	List(ctx context.Context, limit, offset int) ([]*database.DeadLetter, error)
	Delete(ctx context.Context, id int64) error
}

type replayReport struct {
	Replayed int
	Skipped  int
	Failed   int
}

// replayDeadLetters submits up to limit stored dead letters straight to the
// event server. A dead letter is deleted once its event was accepted;
// payloads that do not decode and events the server rejects stay stored.
func replayDeadLetters(ctx context.Context, store deadLetters, client batchCreator, limit int, dryRun bool, out io.Writer) (*replayReport, error) {
	items, err := store.List(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	report := &replayReport{}
	var batch []*database.DeadLetter
	var events []*sdk.Event

	flush := func() error {
		if len(events) == 0 {
			return nil
		}
		defer func() {
			batch = batch[:0]
			events = events[:0]
		}()

		result, err := client.CreateEvents(ctx, events)
		if result == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.Failed += len(batch)
			fmt.Fprintf(out, "batch of %d failed: %v\n", len(batch), err)
			return nil
		}
		for i, o := range result.Outcomes {
			dl := batch[i]
			if o.Err != nil {
				report.Failed++
				fmt.Fprintf(out, "dead letter %d (%s): %v\n", dl.ID, dl.MessageID, o.Err)
				continue
			}
			if err := store.Delete(ctx, dl.ID); err != nil {
				fmt.Fprintf(out, "dead letter %d replayed as %s but not deleted: %v\n", dl.ID, o.EventID, err)
			}
			report.Replayed++
		}
		return nil
	}

	for _, dl := range items {
		msg, err := queue.UnmarshalEventMessage(dl.Payload)
		if err != nil {
			report.Skipped++
			fmt.Fprintf(out, "dead letter %d (%s) skipped: %v\n", dl.ID, dl.MessageID, err)
			continue
		}
		if dryRun {
			fmt.Fprintf(out, "dead letter %d (%s): %s %s/%s\n", dl.ID, dl.MessageID, msg.Event.Event, msg.Event.EntityType, msg.Event.EntityID)
			continue
		}
		batch = append(batch, dl)
		events = append(events, msg.Event)
		if len(events) == relay.MaxBatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	return report, flush()
}
