package schema

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeEventVariants(t *testing.T) {
	cases := map[string]EventKind{
		`{"type":"SESSION_STARTED","sessionId":"s1","pid":42}`:  EventSessionStarted,
		`{"type":"OUTPUT","sessionId":"s1","data":"hi\n"}`:      EventOutput,
		`{"type":"ERROR","error":"socket closed"}`:              EventError,
		`{"type":"PROCESS_EXIT","sessionId":"s1","code":2}`:     EventProcessExit,
		`{"type":"SERVER_ERROR","error":"backend unavailable"}`: EventServerError,
	}
	for frame, want := range cases {
		event, err := DecodeEvent([]byte(frame))
		if err != nil {
			t.Fatalf("decode %s: %v", frame, err)
		}
		if event.Kind() != want {
			t.Fatalf("decode %s: expected %s, got %s", frame, want, event.Kind())
		}
	}
}

func TestDecodeEventPayloadFields(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"type":"SESSION_STARTED","sessionId":"s1","pid":42,"timestamp":"2024-01-01T00:00:00.000Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	started, ok := event.(SessionStarted)
	if !ok {
		t.Fatalf("expected SessionStarted, got %T", event)
	}
	if started.PID != 42 || started.Session() != "s1" {
		t.Fatalf("unexpected payload: %+v", started)
	}
	if started.EventTimestamp() != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("expected timestamp override, got %q", started.EventTimestamp())
	}
}

func TestDecodeEventRejectsUnknownType(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"type":"RESIZE"}`)); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := DecodeEvent([]byte(`not json`)); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for garbage, got %v", err)
	}
}

func TestEncodeEventUsesBridgeFieldNames(t *testing.T) {
	data, err := EncodeEvent(ProcessExit{EventMeta: EventMeta{SessionID: "s1"}, Code: 0})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, `"type":"PROCESS_EXIT"`) || !strings.Contains(got, `"sessionId":"s1"`) {
		t.Fatalf("unexpected frame: %s", got)
	}
	if !strings.Contains(got, `"code":0`) {
		t.Fatalf("expected zero exit code to be kept, got %s", got)
	}
}

func TestErrorEventTextPrefersData(t *testing.T) {
	ev := ErrorEvent{Data: "boom", Error: "other"}
	if ev.Text() != "boom" {
		t.Fatalf("expected data, got %q", ev.Text())
	}
	ev = ErrorEvent{Error: "other"}
	if ev.Text() != "other" {
		t.Fatalf("expected error fallback, got %q", ev.Text())
	}
}

func TestFormatTimestampMatchesISO(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.FixedZone("x", 3600))
	if got := FormatTimestamp(ts); got != "2024-05-06T06:08:09.123Z" {
		t.Fatalf("unexpected timestamp %q", got)
	}
}
