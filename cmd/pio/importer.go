package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/birbparty/pio-go/sdk"
)

// batchCreator is the part of *sdk.EventClient used by the event import
type batchCreator interface {
	CreateEvents(ctx context.Context, events []*sdk.Event) (*sdk.BatchResult, error)
}

type importFailure struct {
	Line int
	Err  error
}

type importReport struct {
	Read     int
	Imported int
	Failures []importFailure
}

// importEvents sends a JSONL event file in batches of batchSize, preserving
// file order. Failed events are reported by line and do not stop the import.
func importEvents(ctx context.Context, client batchCreator, r io.Reader, batchSize int) (*importReport, error) {
	report := &importReport{}
	events := make([]*sdk.Event, 0, batchSize)
	lines := make([]int, 0, batchSize)

	flush := func() error {
		if len(events) == 0 {
			return nil
		}
		result, err := client.CreateEvents(ctx, events)
		if result == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			for _, line := range lines {
				report.Failures = append(report.Failures, importFailure{Line: line, Err: err})
			}
		} else {
			for i, o := range result.Outcomes {
				if o.Err != nil {
					report.Failures = append(report.Failures, importFailure{Line: lines[i], Err: o.Err})
					continue
				}
				report.Imported++
			}
		}
		events = events[:0]
		lines = lines[:0]
		return nil
	}

	err := sdk.ReadEvents(r, func(line int, event *sdk.Event) error {
		report.Read++
		events = append(events, event)
		lines = append(lines, line)
		if len(events) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, flush()
}

// ratingsClient is the part of *sdk.EventClient used by the ratings import
type ratingsClient interface {
	SetUserAsync(ctx context.Context, uid string, props map[string]interface{}, opts ...sdk.EventOption) (*sdk.Result[string], error)
	SetItemAsync(ctx context.Context, iid string, item sdk.ItemProperties, opts ...sdk.EventOption) (*sdk.Result[string], error)
	RateItemAsync(ctx context.Context, uid, iid string, rating int, opts ...sdk.EventOption) (*sdk.Result[string], error)
}

type pendingRequest struct {
	line   int
	result *sdk.Result[string]
}

// importRatings reads "user item rating" lines, separated by whitespace or
// commas. Every user and item is set once on first sight, then the rating
// is recorded. Requests run concurrently up to the client's connection
// limit.
func importRatings(ctx context.Context, client ratingsClient, r io.Reader, item sdk.ItemProperties) (*importReport, error) {
	report := &importReport{}
	users := make(map[string]bool)
	items := make(map[string]bool)
	var pending []pendingRequest

	submit := func(line int, res *sdk.Result[string], err error) {
		if err != nil {
			report.Failures = append(report.Failures, importFailure{Line: line, Err: err})
			return
		}
		pending = append(pending, pendingRequest{line: line, result: res})
	}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.FieldsFunc(scanner.Text(), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) == 0 {
			continue
		}
		report.Read++
		if len(fields) < 3 {
			report.Failures = append(report.Failures, importFailure{Line: line, Err: fmt.Errorf("expected user, item and rating, got %d fields", len(fields))})
			continue
		}
		uid, iid := fields[0], fields[1]
		rating, err := strconv.Atoi(fields[2])
		if err != nil {
			report.Failures = append(report.Failures, importFailure{Line: line, Err: fmt.Errorf("invalid rating %q", fields[2])})
			continue
		}

		if !users[uid] {
			users[uid] = true
			res, err := client.SetUserAsync(ctx, uid, nil)
			submit(line, res, err)
		}
		if !items[iid] {
			items[iid] = true
			res, err := client.SetItemAsync(ctx, iid, item)
			submit(line, res, err)
		}
		res, err := client.RateItemAsync(ctx, uid, iid, rating)
		submit(line, res, err)
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read ratings: %w", err)
	}

	failedLines := make(map[int]bool)
	for _, f := range report.Failures {
		failedLines[f.Line] = true
	}
	for _, p := range pending {
		if _, err := p.result.Wait(ctx); err != nil {
			report.Failures = append(report.Failures, importFailure{Line: p.line, Err: err})
			failedLines[p.line] = true
		}
	}
	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].Line < report.Failures[j].Line
	})
	report.Imported = report.Read - len(failedLines)
	return report, nil
}

func printReport(w io.Writer, report *importReport) {
	fmt.Fprintf(w, "read %d, imported %d, failed %d\n", report.Read, report.Imported, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  line %d: %v\n", f.Line, f.Err)
	}
}
