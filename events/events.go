// Package events defines the change notifications emitted by the mirror
// client and the observers that receive them.
package events

import (
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	// CollectionChanged reports one reconciled category touched by a batch.
	CollectionChanged Kind = "collection_changed"
	// LogAppended reports one record added to the log ring.
	LogAppended Kind = "log_appended"
	// ConnectionChanged reports a logged stream state transition.
	ConnectionChanged Kind = "connection_changed"
	// SessionReset reports that all mirrored state was cleared.
	SessionReset Kind = "session_reset"
)

// Collection details a CollectionChanged event.
type Collection struct {
	Category string `json:"category"`
	Batch    string `json:"batch"`
	Rebuilt  bool   `json:"rebuilt,omitempty"`
	Upserted int    `json:"upserted"`
	Removed  int    `json:"removed"`
	Skipped  int    `json:"skipped,omitempty"`
	Size     int    `json:"size"`
}

// Log details a LogAppended event.
type Log struct {
	Level     string `json:"level"`
	Target    string `json:"target"`
	Message   string `json:"message"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// Connection details a ConnectionChanged event.
type Connection struct {
	Channel string `json:"channel"`
	From    string `json:"from"`
	To      string `json:"to"`
	Error   string `json:"error,omitempty"`
	// RetryInMs is the wait before the next attempt when To is not connected.
	RetryInMs int64 `json:"retry_in_ms,omitempty"`
}

// Event is an immutable notification. Exactly one detail field is set,
// matching Kind.
type Event struct {
	Kind       Kind        `json:"kind"`
	Session    string      `json:"session"`
	Time       time.Time   `json:"time"`
	Turn       *int64      `json:"turn,omitempty"`
	Collection *Collection `json:"collection,omitempty"`
	Log        *Log        `json:"log,omitempty"`
	Connection *Connection `json:"connection,omitempty"`
}

// Observer receives events. OnEvent is called from the tick goroutine and
// must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// Bus fans events out to registered observers in registration order.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

// Subscribe registers o.
func (b *Bus) Subscribe(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Len returns the number of observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// OnEvent delivers e to every observer, so a Bus can itself be subscribed.
func (b *Bus) OnEvent(e Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()
	for _, o := range observers {
		o.OnEvent(e)
	}
}

// Recorder keeps every event it receives. Useful in tests and for replay.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent stores e.
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
