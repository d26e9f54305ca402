package sdk

import (
	"context"
	"sync/atomic"
)

// Actor records actions on behalf of one identified user. Identify may be
// called at any time, from any goroutine; an action uses the identity current
// when it is submitted.
//
//	actor := client.NewActor()
//	actor.Identify("u1")
//	id, err := actor.ActionItem(ctx, sdk.ActionView, "i42", nil)
type Actor struct {
	client *EventClient
	uid    atomic.Pointer[string]
}

// NewActor returns an unidentified actor bound to c.
func (c *EventClient) NewActor() *Actor {
	return &Actor{client: c}
}

// Identify sets the user the actor acts for.
func (a *Actor) Identify(uid string) {
	a.uid.Store(&uid)
}

// Forget clears the identity.
func (a *Actor) Forget() {
	a.uid.Store(nil)
}

// UserID returns the current identity and whether one is set.
func (a *Actor) UserID() (string, bool) {
	p := a.uid.Load()
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

// ActionItemAsync records the identified user performing action on iid. It
// fails with ErrUnidentifiedActor, before any request is made, if Identify
// has not been called.
func (a *Actor) ActionItemAsync(ctx context.Context, action Action, iid string, props map[string]interface{}, opts ...EventOption) (*Result[string], error) {
	uid, ok := a.UserID()
	if !ok {
		return nil, usageError("actions.create", ErrUnidentifiedActor, "call Identify before acting on behalf of a user")
	}
	return a.client.UserActionItemAsync(ctx, action, uid, iid, props, opts...)
}

// ActionItem records an action and returns the event id.
func (a *Actor) ActionItem(ctx context.Context, action Action, iid string, props map[string]interface{}, opts ...EventOption) (string, error) {
	res, err := a.ActionItemAsync(ctx, action, iid, props, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}

// RateItemAsync records a rating from 1 to 5 by the identified user.
func (a *Actor) RateItemAsync(ctx context.Context, iid string, rating int, opts ...EventOption) (*Result[string], error) {
	if _, ok := a.UserID(); !ok {
		return nil, usageError("actions.create", ErrUnidentifiedActor, "call Identify before acting on behalf of a user")
	}
	props, err := ratingProperties(rating)
	if err != nil {
		return nil, err
	}
	return a.ActionItemAsync(ctx, ActionRate, iid, props, opts...)
}

// RateItem records a rating and returns the event id.
func (a *Actor) RateItem(ctx context.Context, iid string, rating int, opts ...EventOption) (string, error) {
	res, err := a.RateItemAsync(ctx, iid, rating, opts...)
	if err != nil {
		return "", err
	}
	return res.Wait(ctx)
}
