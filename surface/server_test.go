package surface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/eventbus"
	"pkt.systems/termlink/internal/simtransport"
	"pkt.systems/termlink/schema"
)

func newTestStack(t *testing.T, initialize bool) (core.Service, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(nil)
	tr := simtransport.New(simtransport.Config{
		OutputDelay: 5 * time.Millisecond,
		StartDelay:  5 * time.Millisecond,
	})
	svc, err := core.NewService(schema.ServiceConfig{DefaultWorkingDirectory: "/"}, core.ServiceDeps{Transport: tr, EventSink: bus})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if initialize {
		if err := svc.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, bus
}

func dialTerminal(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/terminal"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env schema.Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readWrite(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env schema.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != schema.EnvelopeWrite {
		t.Fatalf("expected write envelope, got %q", env.Type)
	}
	return env.Data
}

func TestTerminalReadyCreatesSessionAndForwardsOutput(t *testing.T) {
	svc, bus := newTestStack(t, true)
	srv := httptest.NewServer(NewServer(Config{}, svc, bus).Handler())
	defer srv.Close()
	conn := dialTerminal(t, srv)

	sendEnvelope(t, conn, schema.Envelope{Type: schema.EnvelopeReady})
	if got := readWrite(t, conn); got != Banner+Prompt {
		t.Fatalf("expected banner, got %q", got)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := svc.ActiveSession(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ready to create a session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sendEnvelope(t, conn, schema.Envelope{Type: schema.EnvelopeInput, Data: "ls"})
	if got := readWrite(t, conn); got != simtransport.Response("ls")+Prompt {
		t.Fatalf("expected simulated response, got %q", got)
	}
}

func TestTerminalWritesEachReplyOnce(t *testing.T) {
	svc, bus := newTestStack(t, true)
	srv := httptest.NewServer(NewServer(Config{}, svc, bus).Handler())
	defer srv.Close()
	conn := dialTerminal(t, srv)

	sendEnvelope(t, conn, schema.Envelope{Type: schema.EnvelopeReady})
	if got := readWrite(t, conn); got != Banner+Prompt {
		t.Fatalf("expected banner, got %q", got)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := svc.ActiveSession(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ready to create a session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, line := range []string{"ls", "ls", "pwd"} {
		sendEnvelope(t, conn, schema.Envelope{Type: schema.EnvelopeInput, Data: line})
		if got := readWrite(t, conn); got != simtransport.Response(line)+Prompt {
			t.Fatalf("expected response to %q, got %q", line, got)
		}
	}

	// History holds two copies of every reply; the terminal shows one.
	deadline = time.Now().Add(2 * time.Second)
	for {
		active, _ := svc.ActiveSession()
		if len(active.Messages) == 9 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 9 history entries, got %d", len(active.Messages))
		}
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, data, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected no further frame, got %s", data)
	}
}

func TestTerminalInputWithoutSessionWritesError(t *testing.T) {
	svc, bus := newTestStack(t, false)
	srv := httptest.NewServer(NewServer(Config{}, svc, bus).Handler())
	defer srv.Close()
	conn := dialTerminal(t, srv)

	sendEnvelope(t, conn, schema.Envelope{Type: schema.EnvelopeReady})
	if got := readWrite(t, conn); got != Banner+Prompt {
		t.Fatalf("expected banner, got %q", got)
	}
	if _, ok := svc.ActiveSession(); ok {
		t.Fatalf("expected no session while disconnected")
	}
	sendEnvelope(t, conn, schema.Envelope{Type: "resize"})
	sendEnvelope(t, conn, schema.Envelope{Type: schema.EnvelopeInput, Data: "ls"})
	if got := readWrite(t, conn); got != "error: "+schema.ErrNoActiveSession.Error()+"\r\n" {
		t.Fatalf("expected no active session error, got %q", got)
	}
}

func TestHealthReportsStatus(t *testing.T) {
	svc, bus := newTestStack(t, false)
	handler := NewServer(Config{}, svc, bus).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while disconnected, got %d", rec.Code)
	}

	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when connected, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Connected || resp.Sessions != 0 {
		t.Fatalf("unexpected health %+v", resp)
	}
}
