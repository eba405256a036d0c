package schema

import "errors"

var (
	// ErrConnection indicates the transport could not connect or disconnect.
	ErrConnection = errors.New("connection failed")
	// ErrNotConnected indicates an operation was attempted before a successful connect.
	ErrNotConnected = errors.New("transport not connected")
	// ErrNoActiveSession indicates a send was attempted without a selected session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrUnknownSession indicates a session id that is not registered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDuplicateSession indicates a session id that is already registered.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrSessionClosed indicates the session was terminated.
	ErrSessionClosed = errors.New("session closed")
	// ErrBackendReported marks errors reported by the backend itself rather than local faults.
	ErrBackendReported = errors.New("backend reported error")
	// ErrInvalidEvent indicates a malformed transport event.
	ErrInvalidEvent = errors.New("invalid transport event")
	// ErrMissingContext indicates a nil context was passed.
	ErrMissingContext = errors.New("missing context")
)
