package core

import (
	"context"

	"pkt.systems/termlink/schema"
)

// Service is the front-end facing API for terminal sessions.
type Service interface {
	Initialize(ctx context.Context) error
	CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.SessionID, error)
	SendCommand(ctx context.Context, text string) error
	SetActiveSession(ctx context.Context, sessionID schema.SessionID) error
	CloseSession(ctx context.Context, sessionID schema.SessionID) error
	ActiveSession() (schema.Session, bool)
	Session(sessionID schema.SessionID) (schema.Session, bool)
	Sessions() []schema.Session
	Status() schema.Status
	Shutdown(ctx context.Context) error
}
