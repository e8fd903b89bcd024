// Package events carries notifications between the synchronization workflow
// and whatever user interface hosts it. Components subscribe to the bus they
// are handed instead of registering themselves in a global table, so two
// open repositories never see each other's notifications.
package events

import (
	"sync"
	"time"
)

// Type identifies a kind of event.
type Type string

const (
	// HistoryChanged fires when commits were created, merged in, or
	// discarded, so history views re-read the log. A declined conflict
	// resolution fires it too: the abort reset moved references.
	HistoryChanged Type = "history.changed"

	// ModelReloaded fires after the in-memory model was replaced by the
	// result of a synchronization.
	ModelReloaded Type = "model.reloaded"

	// RefreshStarted and RefreshFinished bracket a synchronization run.
	RefreshStarted  Type = "refresh.started"
	RefreshFinished Type = "refresh.finished"
)

// Event is a single notification.
type Event struct {
	// Type is the kind of event.
	Type Type

	// Workdir locates the working copy the event belongs to.
	Workdir string

	// ModelID identifies the affected model, when one is loaded.
	ModelID string

	// Timestamp is when the event was published.
	Timestamp time.Time
}

// Handler is called synchronously for each published event.
type Handler func(Event)

// Bus fans events out to subscribed handlers. Handlers run synchronously in
// subscription order on the publishing goroutine. The zero value is not
// usable; create buses with NewBus.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Type][]subscription
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]subscription)}
}

// Subscribe registers a handler for an event type and returns a token for
// Unsubscribe.
func (b *Bus) Subscribe(t Type, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.subs[t] = append(b.subs[t], subscription{id: b.next, handler: handler})

	return b.next
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (b *Bus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.subs {
		for i, sub := range subs {
			if sub.id != token {
				continue
			}
			b.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler subscribed to its type. The
// handler list is copied before dispatch, so handlers may subscribe or
// unsubscribe from inside a callback.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[e.Type]))
	copy(subs, b.subs[e.Type])
	b.mu.RUnlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	for _, sub := range subs {
		sub.handler(e)
	}
}

// PublishHistoryChanged is shorthand for publishing a HistoryChanged event.
func (b *Bus) PublishHistoryChanged(workdir, modelID string) {
	b.Publish(Event{Type: HistoryChanged, Workdir: workdir, ModelID: modelID})
}

// PublishModelReloaded is shorthand for publishing a ModelReloaded event.
func (b *Bus) PublishModelReloaded(workdir, modelID string) {
	b.Publish(Event{Type: ModelReloaded, Workdir: workdir, ModelID: modelID})
}
