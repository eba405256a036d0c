package simtransport_test

import (
	"context"
	"testing"
	"time"

	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/simtransport"
	"pkt.systems/termlink/schema"
)

func TestSimulatedSessionRoundTrip(t *testing.T) {
	tr := simtransport.New(simtransport.Config{
		OutputDelay: 5 * time.Millisecond,
		StartDelay:  5 * time.Millisecond,
	})
	svc, err := core.NewService(schema.ServiceConfig{DefaultWorkingDirectory: "/"}, core.ServiceDeps{Transport: tr})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer func() { _ = svc.Shutdown(ctx) }()

	id, err := svc.CreateSession(ctx, schema.CreateSessionRequest{Credential: "k", WorkingDirectory: "/tmp"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	// Let SESSION_STARTED land; it must not add history.
	time.Sleep(30 * time.Millisecond)
	if session, _ := svc.Session(id); len(session.Messages) != 0 {
		t.Fatalf("expected no messages after session start, got %+v", session.Messages)
	}

	if err := svc.SendCommand(ctx, "ls"); err != nil {
		t.Fatalf("send command: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		session, _ := svc.Session(id)
		if len(session.Messages) >= 2 {
			user, reply := session.Messages[0], session.Messages[1]
			if user.Role != schema.RoleUser || user.Content != "ls" {
				t.Fatalf("unexpected first message: %+v", user)
			}
			if reply.Role != schema.RoleAssistant || reply.Kind != schema.MessageText || reply.Content != simtransport.Response("ls") {
				t.Fatalf("unexpected reply: %+v", reply)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reply, have %+v", session.Messages)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestShutdownBeforeInitialize(t *testing.T) {
	tr := simtransport.New(simtransport.Config{})
	svc, err := core.NewService(schema.ServiceConfig{DefaultWorkingDirectory: "/"}, core.ServiceDeps{Transport: tr})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
