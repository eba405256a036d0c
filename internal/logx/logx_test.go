package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
)

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	WithSession(ctx, "session-1").Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "session-1" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestWithSessionSkipsDuplicateField(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("session", "session-1")
	ctx := ContextWithSessionLogger(context.Background(), logger, "session-1")
	WithSession(ctx, "session-1").Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"session"`)) != 1 {
		t.Fatalf("expected a single session field, got %s", line)
	}
}

func TestWithSurfaceAddsField(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	WithSurface(ctx, "ws").Info("hello")

	entry := capture.firstEntry(t)
	if entry["surface"] != "ws" {
		t.Fatalf("expected surface field, got %+v", entry)
	}
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
