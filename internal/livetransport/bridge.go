package livetransport

import "context"

// Bridge is the host collaborator that reaches the real backend. Every call
// reports success or failure; events arrive on the two streams.
type Bridge interface {
	Connect(ctx context.Context, socketPath string) error
	Send(ctx context.Context, message string) error
	StartSession(ctx context.Context, sessionID, credential, workingDir string) error
	SendInput(ctx context.Context, sessionID, input string) error
	Disconnect(ctx context.Context) error
	// Events yields serialized TransportEvent frames.
	Events() <-chan []byte
	// Errors yields socket level failures.
	Errors() <-chan string
}

// SessionStopper is implemented by bridges that can end a single session.
type SessionStopper interface {
	StopSession(ctx context.Context, sessionID string) error
}
