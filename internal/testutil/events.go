package testutil

import (
	"sync"

	"recgate/internal/gate"
)

// EventRecorder collects published events so tests can assert on them
// deterministically. Safe for concurrent use.
type EventRecorder struct {
	mu     sync.Mutex
	events []gate.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) Publish(e gate.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything published so far, in order.
func (r *EventRecorder) Events() []gate.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gate.Event{}, r.events...)
}

// Names returns just the event names, in publish order.
func (r *EventRecorder) Names() []gate.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]gate.EventName, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}
