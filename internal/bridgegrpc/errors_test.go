package bridgegrpc

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pkt.systems/termlink/core"
	"pkt.systems/termlink/schema"
)

func TestWrapTransportErrorUnavailable(t *testing.T) {
	wrapped := wrapTransportError("connect", status.Error(codes.Unavailable, "down"))
	var transportErr *core.TransportError
	if !errors.As(wrapped, &transportErr) {
		t.Fatalf("expected TransportError, got %T", wrapped)
	}
	if transportErr.Kind != core.TransportErrorUnavailable {
		t.Fatalf("expected unavailable, got %s", transportErr.Kind)
	}
}

func TestWrapTransportErrorNotFoundIsRejected(t *testing.T) {
	wrapped := wrapTransportError("send_input", status.Error(codes.NotFound, "unknown session"))
	var transportErr *core.TransportError
	if !errors.As(wrapped, &transportErr) || transportErr.Kind != core.TransportErrorRejected {
		t.Fatalf("expected rejected, got %v", wrapped)
	}
}

func TestWrapTransportErrorCanceled(t *testing.T) {
	wrapped := wrapTransportError("send", context.Canceled)
	var transportErr *core.TransportError
	if !errors.As(wrapped, &transportErr) {
		t.Fatalf("expected TransportError, got %T", wrapped)
	}
	if transportErr.Kind != core.TransportErrorCanceled {
		t.Fatalf("expected canceled, got %s", transportErr.Kind)
	}
}

func TestWrapTransportErrorKeepsClassification(t *testing.T) {
	original := core.NewTransportError(core.TransportErrorTimeout, "ping", context.DeadlineExceeded)
	if wrapped := wrapTransportError("send", original); wrapped != error(original) {
		t.Fatalf("expected existing TransportError to pass through")
	}
}

func TestToStatusMapsSentinels(t *testing.T) {
	if code := status.Code(toStatus(schema.ErrUnknownSession)); code != codes.NotFound {
		t.Fatalf("expected NotFound, got %s", code)
	}
	if code := status.Code(toStatus(schema.ErrDuplicateSession)); code != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %s", code)
	}
	if code := status.Code(toStatus(errors.New("boom"))); code != codes.Internal {
		t.Fatalf("expected Internal, got %s", code)
	}
}
