package sdk

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved event names understood by the event server.
const (
	EventSet    = "$set"
	EventUnset  = "$unset"
	EventDelete = "$delete"
)

// Entity types used by the convenience methods.
const (
	EntityUser = "user"
	EntityItem = "item"
)

// Event is a timestamped fact about an entity, optionally acting on a
// target entity.
//
// EventTime is encoded with TimeLayout. A zero EventTime is omitted from the
// request and the server assigns its own time; the convenience methods on
// EventClient always set it to the current time.
type Event struct {
	EventID          string                 `json:"eventId,omitempty"`
	Event            string                 `json:"event"`
	EntityType       string                 `json:"entityType"`
	EntityID         string                 `json:"entityId"`
	TargetEntityType string                 `json:"targetEntityType,omitempty"`
	TargetEntityID   string                 `json:"targetEntityId,omitempty"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	EventTime        time.Time              `json:"-"`
	CreationTime     time.Time              `json:"-"`
}

// eventJSON is Event's wire shape.
type eventJSON struct {
	EventID          string                 `json:"eventId,omitempty"`
	Event            string                 `json:"event"`
	EntityType       string                 `json:"entityType"`
	EntityID         string                 `json:"entityId"`
	TargetEntityType string                 `json:"targetEntityType,omitempty"`
	TargetEntityID   string                 `json:"targetEntityId,omitempty"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	EventTime        *string                `json:"eventTime,omitempty"`
	CreationTime     *string                `json:"creationTime,omitempty"`
}

// MarshalJSON encodes the event with ISO-8601 timestamps. time.Time values
// inside Properties are encoded the same way.
func (e Event) MarshalJSON() ([]byte, error) {
	wire := eventJSON{
		EventID:          e.EventID,
		Event:            e.Event,
		EntityType:       e.EntityType,
		EntityID:         e.EntityID,
		TargetEntityType: e.TargetEntityType,
		TargetEntityID:   e.TargetEntityID,
	}
	if e.Properties != nil {
		wire.Properties = normalizeTimes(e.Properties).(map[string]interface{})
	}
	if !e.EventTime.IsZero() {
		s := FormatTime(e.EventTime)
		wire.EventTime = &s
	}
	if !e.CreationTime.IsZero() {
		s := FormatTime(e.CreationTime)
		wire.CreationTime = &s
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes an event. A timestamp that is not ISO-8601 is an
// error.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire eventJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := Event{
		EventID:          wire.EventID,
		Event:            wire.Event,
		EntityType:       wire.EntityType,
		EntityID:         wire.EntityID,
		TargetEntityType: wire.TargetEntityType,
		TargetEntityID:   wire.TargetEntityID,
		Properties:       wire.Properties,
	}
	if wire.EventTime != nil {
		t, err := ParseTime(*wire.EventTime)
		if err != nil {
			return fmt.Errorf("eventTime: %w", err)
		}
		out.EventTime = t
	}
	if wire.CreationTime != nil {
		t, err := ParseTime(*wire.CreationTime)
		if err != nil {
			return fmt.Errorf("creationTime: %w", err)
		}
		out.CreationTime = t
	}
	*e = out
	return nil
}

// Validate checks the fields the event server requires.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}
	if e.Event == "" {
		return fmt.Errorf("%w: event name is required", ErrInvalidEvent)
	}
	if e.EntityType == "" {
		return fmt.Errorf("%w: entity type is required", ErrInvalidEvent)
	}
	if e.EntityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidEvent)
	}
	if (e.TargetEntityType == "") != (e.TargetEntityID == "") {
		return fmt.Errorf("%w: target entity type and id must be set together", ErrInvalidEvent)
	}
	return nil
}
