package core

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termlink/schema"
)

// Router dispatches transport events to handlers keyed by session id, plus
// an optional wildcard handler that sees every event.
type Router struct {
	mu       sync.RWMutex
	handlers map[schema.HandlerKey]EventHandler
	logger   pslog.Logger
}

// NewRouter constructs an empty router.
func NewRouter(logger pslog.Logger) *Router {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Router{
		handlers: make(map[schema.HandlerKey]EventHandler),
		logger:   logger,
	}
}

// Handle registers handler for key. The latest registration for a key wins;
// a nil handler removes the key.
func (r *Router) Handle(key schema.HandlerKey, handler EventHandler) {
	if r == nil || key == "" {
		return
	}
	r.mu.Lock()
	if handler == nil {
		delete(r.handlers, key)
	} else {
		r.handlers[key] = handler
	}
	count := len(r.handlers)
	r.mu.Unlock()
	r.logger.Trace("router handler set", "key", key, "removed", handler == nil, "handlers", count)
}

// Clear drops every handler.
func (r *Router) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.handlers = make(map[schema.HandlerKey]EventHandler)
	r.mu.Unlock()
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch delivers event to the handler registered for its session id and,
// independently, to the wildcard handler. A panicking handler does not stop
// delivery to the other one.
func (r *Router) Dispatch(event schema.TransportEvent) {
	if r == nil || event == nil {
		return
	}
	var sessionHandler EventHandler
	sessionID := event.Session()
	r.mu.RLock()
	if sessionID != "" && schema.KeyFor(sessionID) != schema.WildcardKey {
		sessionHandler = r.handlers[schema.KeyFor(sessionID)]
	}
	wildcard := r.handlers[schema.WildcardKey]
	r.mu.RUnlock()

	if sessionHandler != nil {
		r.invoke(schema.KeyFor(sessionID), sessionHandler, event)
	}
	if wildcard != nil {
		r.invoke(schema.WildcardKey, wildcard, event)
	}
}

func (r *Router) invoke(key schema.HandlerKey, handler EventHandler, event schema.TransportEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("router handler panic", "key", key, "type", event.Kind(), "panic", fmt.Sprint(rec))
		}
	}()
	handler(event)
}
