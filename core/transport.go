package core

import (
	"context"

	"pkt.systems/termlink/schema"
)

// EventHandler receives transport events. Handlers run synchronously on the
// transport's delivery goroutine and must not block.
type EventHandler func(event schema.TransportEvent)

// Transport connects to a command-execution backend and delivers its events
// asynchronously. Output is never returned from SendInput directly.
type Transport interface {
	// Connect establishes readiness. Calling it while connected is a no-op.
	Connect(ctx context.Context) error
	// StartSession asks the backend to allocate a session. A SessionStarted
	// event follows asynchronously.
	StartSession(ctx context.Context, req StartSessionRequest) error
	// SendInput forwards one line to a backend session.
	SendInput(ctx context.Context, sessionID schema.SessionID, text string) error
	// Disconnect releases backend resources and drops every registered
	// handler. It is safe on a transport that never connected.
	Disconnect(ctx context.Context) error
	// OnEvent registers handler for key, replacing any previous handler.
	// A nil handler removes the registration.
	OnEvent(key schema.HandlerKey, handler EventHandler)
}

// StartSessionRequest describes a backend session allocation.
type StartSessionRequest struct {
	SessionID        schema.SessionID
	Credential       string
	WorkingDirectory string
}

// SessionStopper is implemented by transports that can release a single
// backend session.
type SessionStopper interface {
	StopSession(ctx context.Context, sessionID schema.SessionID) error
}
