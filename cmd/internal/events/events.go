// Package events publishes auth domain events. Publishing is best-effort: callers log
// failures and carry on.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	UserRegistered  = "user.registered"
	AuthLogin       = "auth.login"
	AuthRefresh     = "auth.refresh"
	AuthLogout      = "auth.logout"
	UserActivated   = "user.activated"
	UserDeactivated = "user.deactivated"
	FeatureAssigned = "feature.assigned"
	FeatureRevoked  = "feature.unassigned"
)

// Event is the JSON body of every published message. It never carries secrets.
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Capture keeps published events in memory. Tests use it to assert on side effects.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *Capture) Publish(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Types returns the type of each captured event, in order.
func (c *Capture) Types() []string {
	evs := c.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
