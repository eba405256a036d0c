package bridgegrpc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/bridgegrpc"
	"pkt.systems/termlink/internal/livetransport"
	"pkt.systems/termlink/schema"
)

func TestLiveServiceOverShellBridge(t *testing.T) {
	dir, err := os.MkdirTemp("", "tlb")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	socketPath := filepath.Join(dir, "bridge.sock")

	backend := bridgegrpc.NewShellBackend(bridgegrpc.ShellConfig{})
	defer backend.Close()
	srv := bridgegrpc.NewServer(bridgegrpc.Config{SocketPath: socketPath}, backend)
	srvCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ListenAndServe(srvCtx) }()

	tr, err := livetransport.New(bridgegrpc.NewClient(bridgegrpc.Config{}), livetransport.Config{SocketPath: socketPath})
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	svc, err := core.NewService(schema.ServiceConfig{DefaultWorkingDirectory: t.TempDir()}, core.ServiceDeps{Transport: tr})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err = svc.Initialize(ctx); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("initialize: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer func() { _ = svc.Shutdown(ctx) }()

	id, err := svc.CreateSession(ctx, schema.CreateSessionRequest{Credential: "k"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := svc.SendCommand(ctx, "echo hello"); err != nil {
		t.Fatalf("send command: %v", err)
	}

	wait := time.After(5 * time.Second)
	for {
		session, _ := svc.Session(id)
		for _, msg := range session.Messages {
			if msg.Role == schema.RoleAssistant && msg.Content == "hello\n" {
				if session.Messages[0].Role != schema.RoleUser || session.Messages[0].Content != "echo hello" {
					t.Fatalf("expected user message first, got %+v", session.Messages[0])
				}
				return
			}
		}
		select {
		case <-wait:
			t.Fatalf("timed out waiting for shell output, have %+v", session.Messages)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
