package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/birbparty/pio-go/sdk"
)

// Subject names
const (
	SubjectEvents = "pio.events"
)

// EventMessage is the envelope published for one event awaiting relay.
type EventMessage struct {
	ID          string     `json:"id"`
	PublishedAt time.Time  `json:"publishedAt"`
	Source      string     `json:"source,omitempty"`
	Event       *sdk.Event `json:"event"`
}

// NewEventMessage wraps an event in an envelope with a fresh id.
func NewEventMessage(event *sdk.Event, source string) *EventMessage {
	return &EventMessage{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Source:      source,
		Event:       event,
	}
}

// Marshal serializes the message to JSON
func (m *EventMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalEventMessage decodes an envelope and checks that it carries a
// valid event.
func UnmarshalEventMessage(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode event message: %w", err)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("event message has no id")
	}
	if msg.Event == nil {
		return nil, fmt.Errorf("event message %s has no event", msg.ID)
	}
	if err := msg.Event.Validate(); err != nil {
		return nil, fmt.Errorf("event message %s: %w", msg.ID, err)
	}
	return &msg, nil
}
