package sdk

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileExporter writes events to a file, one JSON object per line, in the
// same encoding the event server accepts. The file can be imported later
// instead of sending events live.
//
//	exp, err := sdk.NewFileExporter("events.jsonl")
//	if err != nil {
//	    return err
//	}
//	defer exp.Close()
//	err = exp.CreateEvent(&sdk.Event{Event: "view", EntityType: "user", EntityID: "u1"})
type FileExporter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	count  int
	now    func() time.Time
}

// NewFileExporter creates (or truncates) the file at path.
func NewFileExporter(path string) (*FileExporter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	return &FileExporter{
		file:   f,
		writer: bufio.NewWriter(f),
		now:    time.Now,
	}, nil
}

// CreateEvent validates event and appends it to the file. A zero EventTime
// is replaced by the current time; event itself is not modified.
func (x *FileExporter) CreateEvent(event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	e := *event
	if e.EventTime.IsZero() {
		e.EventTime = x.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.file == nil {
		return ErrClientClosed
	}
	if _, err := x.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	x.count++
	return nil
}

// Count returns the number of events written.
func (x *FileExporter) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.count
}

// Close flushes buffered events and closes the file.
func (x *FileExporter) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.file == nil {
		return nil
	}
	flushErr := x.writer.Flush()
	closeErr := x.file.Close()
	x.file = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush export file: %w", flushErr)
	}
	return closeErr
}

// maxLineSize bounds a single exported event.
const maxLineSize = 4 << 20

// ReadEvents calls fn for every event in a file written by FileExporter, in
// file order, with the 1-based line number. Blank lines are skipped. Reading
// stops at the first malformed line or the first error returned by fn.
func ReadEvents(r io.Reader, fn func(line int, event *Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(line, &e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}
