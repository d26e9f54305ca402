package sdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Action is a user-to-item interaction name.
type Action string

// The fixed action vocabulary. Any other name is accepted by
// UserActionItem as well.
const (
	ActionRate       Action = "rate"
	ActionLike       Action = "like"
	ActionDislike    Action = "dislike"
	ActionView       Action = "view"
	ActionConversion Action = "conversion"
)

// PropRating is the property carrying the rating of a rate action.
const PropRating = "rating"

// EventOption adjusts an event built by a convenience method.
type EventOption func(*Event)

// At sets the event time. Without it, convenience methods use the current time.
func At(t time.Time) EventOption {
	return func(e *Event) { e.EventTime = t }
}

// EventClient records events to the event server. It is safe for concurrent
// use; its configuration never changes after construction.
//
// Every operation comes in two forms. The Async form returns a *Result
// without blocking; its error is non-nil only when the call is rejected
// before anything is sent (invalid arguments, closed client, full queue).
// The plain form calls the Async form and waits for the result.
type EventClient struct {
	*baseClient
}

// NewEventClient creates an event client. If config is nil, DefaultConfig
// is used.
//
//	client, err := sdk.NewEventClient(sdk.DefaultConfig().
//	    WithBaseURL("http://events:7070").
//	    WithAccessKey(key))
func NewEventClient(config *Config) (*EventClient, error) {
	base, err := newBaseClient(config, DefaultConfig)
	if err != nil {
		return nil, err
	}
	return &EventClient{baseClient: base}, nil
}

// Derive returns a new, independent client whose configuration is this
// client's with override applied. The receiver is not modified.
//
//	other, err := client.Derive(func(c *sdk.Config) { c.AccessKey = otherKey })
func (c *EventClient) Derive(override func(*Config)) (*EventClient, error) {
	return NewEventClient(c.derivedConfig(override))
}

func (c *EventClient) keyQuery() url.Values {
	return url.Values{"accessKey": []string{c.config.AccessKey}}
}

// CreateEventAsync submits event to POST /events.json.
func (c *EventClient) CreateEventAsync(ctx context.Context, event *Event) (*Result[string], error) {
	return c.entityEvent(ctx, "events.create", event)
}

// CreateEvent records event and returns the id assigned by the server.
func (c *EventClient) CreateEvent(ctx context.Context, event *Event) (string, error) {
	res, err := c.CreateEventAsync(ctx, event)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// GetEventAsync fetches an event by id.
func (c *EventClient) GetEventAsync(ctx context.Context, eventID string) (*Result[*Event], error) {
	const op = "events.get"
	if eventID == "" {
		return nil, usageError(op, ErrInvalidEvent, "event id is required")
	}
	future, err := c.transport.submit(ctx, &Request{
		Endpoint: op,
		Method:   http.MethodGet,
		URL:      c.url("/events/"+url.PathEscape(eventID)+".json", c.keyQuery()),
	})
	if err != nil {
		return nil, err
	}
	return newResult(future, decodeEvent(op)), nil
}

// GetEvent fetches an event by id.
func (c *EventClient) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	res, err := c.GetEventAsync(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return res.Wait(ctx)
}

// DeleteEventAsync removes an event by id.
func (c *EventClient) DeleteEventAsync(ctx context.Context, eventID string) (*Result[struct{}], error) {
	const op = "events.delete"
	if eventID == "" {
		return nil, usageError(op, ErrInvalidEvent, "event id is required")
	}
	future, err := c.transport.submit(ctx, &Request{
		Endpoint: op,
		Method:   http.MethodDelete,
		URL:      c.url("/events/"+url.PathEscape(eventID)+".json", c.keyQuery()),
	})
	if err != nil {
		return nil, err
	}
	return newResult(future, func(resp *RawResponse) (struct{}, error) {
		return struct{}{}, expectStatus(op, resp, http.StatusOK)
	}), nil
}

// DeleteEvent removes an event by id.
func (c *EventClient) DeleteEvent(ctx context.Context, eventID string) error {
	res, err := c.DeleteEventAsync(ctx, eventID)
	if err != nil {
		return err
	}
	_, err = res.Wait(ctx)
	return err
}

func decodeEvent(op string) DecodeFunc[*Event] {
	inner := decodeJSON[Event](op, http.StatusOK)
	return func(resp *RawResponse) (*Event, error) {
		event, err := inner(resp)
		if err != nil {
			return nil, err
		}
		if err := event.Validate(); err != nil {
			return nil, decodeError(op, resp.Body, err)
		}
		return &event, nil
	}
}

func newEvent(name, entityType, entityID string, props map[string]interface{}, opts []EventOption) *Event {
	e := &Event{
		Event:      name,
		EntityType: entityType,
		EntityID:   entityID,
		Properties: props,
		EventTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// unsetProperties turns property names into the map an $unset event carries.
func unsetProperties(op string, names []string) (map[string]interface{}, error) {
	if len(names) == 0 {
		return nil, usageError(op, ErrEmptyList, "property list cannot be empty")
	}
	props := make(map[string]interface{}, len(names))
	for _, name := range names {
		props[name] = ""
	}
	return props, nil
}

func (c *EventClient) entityEvent(ctx context.Context, op string, e *Event) (*Result[string], error) {
	if err := e.Validate(); err != nil {
		return nil, usageError(op, err, "%v", err)
	}
	future, err := c.postJSON(ctx, op, c.url("/events.json", c.keyQuery()), e)
	if err != nil {
		return nil, err
	}
	return newResult(future, decodeEventID(op)), nil
}

// SetUserAsync records a $set event on a user.
func (c *EventClient) SetUserAsync(ctx context.Context, uid string, props map[string]interface{}, opts ...EventOption) (*Result[string], error) {
	return c.entityEvent(ctx, "users.set", newEvent(EventSet, EntityUser, uid, props, opts))
}

// SetUser records a $set event on a user and returns the event id.
func (c *EventClient) SetUser(ctx context.Context, uid string, props map[string]interface{}, opts ...EventOption) (string, error) {
	res, err := c.SetUserAsync(ctx, uid, props, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// UnsetUserAsync records an $unset event removing the named user properties.
func (c *EventClient) UnsetUserAsync(ctx context.Context, uid string, names []string, opts ...EventOption) (*Result[string], error) {
	const op = "users.unset"
	props, err := unsetProperties(op, names)
	if err != nil {
		return nil, err
	}
	return c.entityEvent(ctx, op, newEvent(EventUnset, EntityUser, uid, props, opts))
}

// UnsetUser records an $unset event on a user and returns the event id.
func (c *EventClient) UnsetUser(ctx context.Context, uid string, names []string, opts ...EventOption) (string, error) {
	res, err := c.UnsetUserAsync(ctx, uid, names, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// DeleteUserAsync records a $delete event on a user.
func (c *EventClient) DeleteUserAsync(ctx context.Context, uid string, opts ...EventOption) (*Result[string], error) {
	return c.entityEvent(ctx, "users.delete", newEvent(EventDelete, EntityUser, uid, nil, opts))
}

// DeleteUser records a $delete event on a user and returns the event id.
func (c *EventClient) DeleteUser(ctx context.Context, uid string, opts ...EventOption) (string, error) {
	res, err := c.DeleteUserAsync(ctx, uid, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// SetItemAsync records a $set event on an item.
func (c *EventClient) SetItemAsync(ctx context.Context, iid string, item ItemProperties, opts ...EventOption) (*Result[string], error) {
	const op = "items.set"
	props, err := item.Properties()
	if err != nil {
		return nil, usageError(op, err, "%v", err)
	}
	return c.entityEvent(ctx, op, newEvent(EventSet, EntityItem, iid, props, opts))
}

// SetItem records a $set event on an item and returns the event id.
func (c *EventClient) SetItem(ctx context.Context, iid string, item ItemProperties, opts ...EventOption) (string, error) {
	res, err := c.SetItemAsync(ctx, iid, item, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// UnsetItemAsync records an $unset event removing the named item properties.
func (c *EventClient) UnsetItemAsync(ctx context.Context, iid string, names []string, opts ...EventOption) (*Result[string], error) {
	const op = "items.unset"
	props, err := unsetProperties(op, names)
	if err != nil {
		return nil, err
	}
	return c.entityEvent(ctx, op, newEvent(EventUnset, EntityItem, iid, props, opts))
}

// UnsetItem records an $unset event on an item and returns the event id.
func (c *EventClient) UnsetItem(ctx context.Context, iid string, names []string, opts ...EventOption) (string, error) {
	res, err := c.UnsetItemAsync(ctx, iid, names, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// DeleteItemAsync records a $delete event on an item.
func (c *EventClient) DeleteItemAsync(ctx context.Context, iid string, opts ...EventOption) (*Result[string], error) {
	return c.entityEvent(ctx, "items.delete", newEvent(EventDelete, EntityItem, iid, nil, opts))
}

// DeleteItem records a $delete event on an item and returns the event id.
func (c *EventClient) DeleteItem(ctx context.Context, iid string, opts ...EventOption) (string, error) {
	res, err := c.DeleteItemAsync(ctx, iid, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// UserActionItemAsync records user uid performing action on item iid.
func (c *EventClient) UserActionItemAsync(ctx context.Context, action Action, uid, iid string, props map[string]interface{}, opts ...EventOption) (*Result[string], error) {
	const op = "actions.create"
	if uid == "" {
		return nil, usageError(op, ErrUnidentifiedActor, "user id is required")
	}
	if action == "" {
		return nil, usageError(op, ErrInvalidEvent, "action is required")
	}
	e := newEvent(string(action), EntityUser, uid, props, opts)
	e.TargetEntityType = EntityItem
	e.TargetEntityID = iid
	return c.entityEvent(ctx, op, e)
}

// UserActionItem records an action and returns the event id.
func (c *EventClient) UserActionItem(ctx context.Context, action Action, uid, iid string, props map[string]interface{}, opts ...EventOption) (string, error) {
	res, err := c.UserActionItemAsync(ctx, action, uid, iid, props, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// RateItemAsync records a rate action carrying a rating from 1 to 5.
func (c *EventClient) RateItemAsync(ctx context.Context, uid, iid string, rating int, opts ...EventOption) (*Result[string], error) {
	props, err := ratingProperties(rating)
	if err != nil {
		return nil, err
	}
	return c.UserActionItemAsync(ctx, ActionRate, uid, iid, props, opts...)
}

// RateItem records a rating and returns the event id.
func (c *EventClient) RateItem(ctx context.Context, uid, iid string, rating int, opts ...EventOption) (string, error) {
	res, err := c.RateItemAsync(ctx, uid, iid, rating, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

func ratingProperties(rating int) (map[string]interface{}, error) {
	if rating < 1 || rating > 5 {
		return nil, usageError("actions.create", ErrInvalidEvent, "rating must be between 1 and 5, got %d", rating)
	}
	return map[string]interface{}{PropRating: rating}, nil
}
