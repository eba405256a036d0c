package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termlink/schema"
)

type contextKey int

const (
	sessionKey contextKey = iota
	surfaceKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := Ctx(ctx)
	if sessionID == "" {
		return log
	}
	if ctx != nil {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
	}
	return log.With("session", sessionID)
}

// WithSurface annotates the logger with the front end that issued a request.
func WithSurface(ctx context.Context, surface string) pslog.Logger {
	log := Ctx(ctx)
	if surface == "" {
		return log
	}
	if ctx != nil {
		if current, ok := ctx.Value(surfaceKey).(string); ok && current == surface {
			return log
		}
	}
	return log.With("surface", surface)
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// ContextWithSurfaceLogger attaches the logger and surface marker to the context.
func ContextWithSurfaceLogger(ctx context.Context, log pslog.Logger, surface string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if surface == "" {
		return ctx
	}
	return context.WithValue(ctx, surfaceKey, surface)
}
