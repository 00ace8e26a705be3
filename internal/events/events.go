// Package events provides in-process pub/sub for reminder lifecycle events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a reminder lifecycle event.
type Kind string

const (
	KindReminderShown       Kind = "reminder_shown"
	KindReminderFocused     Kind = "reminder_focused"
	KindReminderClosed      Kind = "reminder_closed"
	KindReminderSkipped     Kind = "reminder_skipped"
	KindQuickCloseBlocked   Kind = "quick_close_blocked"
	KindQuickCloseConfirmed Kind = "quick_close_confirmed"
	KindSettingsUpdated     Kind = "settings_updated"
	KindExportCreated       Kind = "export_created"
)

// Event is a lightweight reminder domain event.
type Event struct {
	ID     string
	Kind   Kind
	At     time.Time
	Detail string
}

// New constructs an event stamped with a fresh id and the current time.
func New(kind Kind, detail string) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		At:     time.Now(),
		Detail: detail,
	}
}

// Handler reacts to an event.
type Handler func(event Event)

// Bus provides in-process pub/sub for events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]Handler
	all         []Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for a given event kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], handler)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event kind. Handlers run synchronously;
// the caller decides the concurrency model.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.all...)
	handlers = append(handlers, b.subscribers[event.Kind]...)
	b.mu.RUnlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	for _, handler := range handlers {
		handler(event)
	}
}
