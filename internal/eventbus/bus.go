package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termlink/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventMessage carries a message appended to a session history.
	EventMessage EventType = "message"
	// EventSession carries session lifecycle updates.
	EventSession EventType = "session"
)

// Event represents a surface-facing event emitted by the core service.
type Event struct {
	Type    EventType
	Message schema.MessageEvent
	Session schema.SessionEvent
}

// SessionID returns the session the event belongs to.
func (e Event) SessionID() schema.SessionID {
	if e.Type == EventSession {
		return e.Session.SessionID
	}
	return e.Message.SessionID
}

// Bus fans out every session's events to its subscribers. Subscribers
// filter by session themselves since the selected session changes over a
// connection's lifetime.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// SubscribeAll registers a subscriber that sees every session and returns
// its channel and cancel func.
func (b *Bus) SubscribeAll() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// OnMessage publishes an appended message.
func (b *Bus) OnMessage(event schema.MessageEvent) {
	b.publish(event.SessionID, Event{Type: EventMessage, Message: event})
}

// OnSessionEvent publishes a session lifecycle change.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	b.publish(event.SessionID, Event{Type: EventSession, Session: event})
}

// publish delivers without blocking; full subscribers lose the event.
func (b *Bus) publish(sessionID schema.SessionID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	delivered := 0
	for sub := range b.subs {
		select {
		case sub <- event:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("session", sessionID).Trace("eventbus dropped", "count", dropped, "delivered", delivered)
	}
}
