package simtransport

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/termlink/core"
	"pkt.systems/termlink/schema"
)

func newFastTransport() *Transport {
	return New(Config{
		OutputDelay: 5 * time.Millisecond,
		StartDelay:  20 * time.Millisecond,
		PID:         func() int { return 4242 },
	})
}

func collect(tr *Transport) <-chan schema.TransportEvent {
	ch := make(chan schema.TransportEvent, 32)
	tr.OnEvent(schema.WildcardKey, func(event schema.TransportEvent) { ch <- event })
	return ch
}

func next(t *testing.T, ch <-chan schema.TransportEvent) schema.TransportEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func TestResponseTable(t *testing.T) {
	cases := map[string]string{
		"pwd":            "/data/data/com.termux/files/home\n",
		"ls":             "Documents\nDownloads\nstorage\n",
		"echo $PATH":     "/data/data/com.termux/files/usr/bin\n",
		"node --version": "v18.19.0\n",
		"claude-code":    "Claude Code v1.0.0 (Mock Mode)\n",
		"whoami":         "Mock response for: whoami\n",
	}
	for input, want := range cases {
		if got := Response(input); got != want {
			t.Fatalf("Response(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestConnectAnnouncesSentinelSession(t *testing.T) {
	tr := newFastTransport()
	events := collect(tr)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Disconnect(context.Background()) }()

	event := next(t, events)
	started, ok := event.(schema.SessionStarted)
	if !ok {
		t.Fatalf("expected SessionStarted, got %T", event)
	}
	if started.SessionID != schema.MockSessionID || started.PID != ConnectPID {
		t.Fatalf("unexpected connect event: %+v", started)
	}
	if started.Timestamp == "" {
		t.Fatalf("expected timestamp on delivered event")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	tr := newFastTransport()
	events := collect(tr)
	ctx := context.Background()
	_ = tr.Connect(ctx)
	_ = tr.Connect(ctx)
	defer func() { _ = tr.Disconnect(ctx) }()

	next(t, events)
	select {
	case event := <-events:
		t.Fatalf("expected a single connect event, got extra %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventsArriveInEmissionOrder(t *testing.T) {
	tr := newFastTransport()
	events := collect(tr)
	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Disconnect(ctx) }()
	next(t, events)

	if err := tr.StartSession(ctx, core.StartSessionRequest{SessionID: "s1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, line := range []string{"pwd", "ls", "uname"} {
		if err := tr.SendInput(ctx, "s1", line); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if started, ok := next(t, events).(schema.SessionStarted); !ok || started.PID != 4242 {
		t.Fatalf("expected session start first, got %+v", started)
	}
	for _, line := range []string{"pwd", "ls", "uname"} {
		output, ok := next(t, events).(schema.Output)
		if !ok {
			t.Fatalf("expected output for %q", line)
		}
		if output.Data != Response(line) || output.SessionID != "s1" {
			t.Fatalf("unexpected output for %q: %+v", line, output)
		}
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	tr := newFastTransport()
	ctx := context.Background()
	if err := tr.SendInput(ctx, "s1", "ls"); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	err := tr.StartSession(ctx, core.StartSessionRequest{SessionID: "s1"})
	var transportErr *core.TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind != core.TransportErrorNotConnected {
		t.Fatalf("expected classified not-connected error, got %v", err)
	}
}

func TestDisconnectBeforeConnect(t *testing.T) {
	tr := newFastTransport()
	if err := tr.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestDisconnectDropsPendingEventsAndHandlers(t *testing.T) {
	tr := New(Config{OutputDelay: 50 * time.Millisecond, StartDelay: 50 * time.Millisecond})
	events := collect(tr)
	ctx := context.Background()
	_ = tr.Connect(ctx)
	next(t, events)
	_ = tr.SendInput(ctx, "s1", "ls")

	if err := tr.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	select {
	case event := <-events:
		t.Fatalf("expected no delivery after disconnect, got %+v", event)
	case <-time.After(150 * time.Millisecond):
	}
	if err := tr.SendInput(ctx, "s1", "ls"); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected inert transport after disconnect, got %v", err)
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	tr := newFastTransport()
	ctx := context.Background()
	_ = tr.Connect(ctx)
	_ = tr.Disconnect(ctx)

	events := collect(tr)
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer func() { _ = tr.Disconnect(ctx) }()
	if _, ok := next(t, events).(schema.SessionStarted); !ok {
		t.Fatalf("expected connect event after reconnect")
	}
}

func TestHandlerMayDisconnect(t *testing.T) {
	tr := newFastTransport()
	ctx := context.Background()
	done := make(chan struct{})
	tr.OnEvent(schema.WildcardKey, func(schema.TransportEvent) {
		_ = tr.Disconnect(ctx)
		close(done)
	})
	_ = tr.Connect(ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not run")
	}
}
