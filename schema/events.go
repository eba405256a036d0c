package schema

import (
	"encoding/json"
	"fmt"
)

// EventKind is the wire discriminator of a TransportEvent.
type EventKind string

const (
	// EventSessionStarted reports that the backend allocated a session.
	EventSessionStarted EventKind = "SESSION_STARTED"
	// EventOutput carries backend output text.
	EventOutput EventKind = "OUTPUT"
	// EventError carries a backend-reported error for a session.
	EventError EventKind = "ERROR"
	// EventProcessExit reports that a backend process exited.
	EventProcessExit EventKind = "PROCESS_EXIT"
	// EventServerError reports a backend failure not tied to output.
	EventServerError EventKind = "SERVER_ERROR"
)

// TransportEvent is an asynchronous notification from a transport.
// The concrete variants are SessionStarted, Output, ErrorEvent, ProcessExit
// and ServerError; no other type implements it.
type TransportEvent interface {
	Kind() EventKind
	Session() SessionID
	EventTimestamp() string
	transportEvent()
}

// EventMeta holds the fields shared by every variant.
type EventMeta struct {
	SessionID SessionID
	// Timestamp overrides the local append time when set.
	Timestamp string
}

// Session returns the session id, empty when absent.
func (m EventMeta) Session() SessionID { return m.SessionID }

// EventTimestamp returns the optional timestamp override.
func (m EventMeta) EventTimestamp() string { return m.Timestamp }

func (EventMeta) transportEvent() {}

// SessionStarted is emitted once the backend bound a process to a session.
type SessionStarted struct {
	EventMeta
	PID int
}

// Kind implements TransportEvent.
func (SessionStarted) Kind() EventKind { return EventSessionStarted }

// Output carries backend output.
type Output struct {
	EventMeta
	Data string
}

// Kind implements TransportEvent.
func (Output) Kind() EventKind { return EventOutput }

// ErrorEvent carries a backend-reported error. Data wins over Error when both are set.
type ErrorEvent struct {
	EventMeta
	Data  string
	Error string
}

// Kind implements TransportEvent.
func (ErrorEvent) Kind() EventKind { return EventError }

// Text returns Data, falling back to Error.
func (e ErrorEvent) Text() string {
	if e.Data != "" {
		return e.Data
	}
	return e.Error
}

// ProcessExit reports a backend process exit code.
type ProcessExit struct {
	EventMeta
	Code int
}

// Kind implements TransportEvent.
func (ProcessExit) Kind() EventKind { return EventProcessExit }

// ServerError reports a failure of the backend itself.
type ServerError struct {
	EventMeta
	Error string
}

// Kind implements TransportEvent.
func (ServerError) Kind() EventKind { return EventServerError }

// wireEvent is the JSON shape exchanged with the live backend bridge.
type wireEvent struct {
	Type      EventKind `json:"type"`
	SessionID SessionID `json:"sessionId,omitempty"`
	Data      string    `json:"data,omitempty"`
	Code      *int      `json:"code,omitempty"`
	PID       *int      `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// EncodeEvent serializes an event into its bridge JSON form.
func EncodeEvent(event TransportEvent) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	w := wireEvent{
		Type:      event.Kind(),
		SessionID: event.Session(),
		Timestamp: event.EventTimestamp(),
	}
	switch ev := event.(type) {
	case SessionStarted:
		pid := ev.PID
		w.PID = &pid
	case Output:
		w.Data = ev.Data
	case ErrorEvent:
		w.Data = ev.Data
		w.Error = ev.Error
	case ProcessExit:
		code := ev.Code
		w.Code = &code
	case ServerError:
		w.Error = ev.Error
	default:
		return nil, fmt.Errorf("%w: unsupported variant %T", ErrInvalidEvent, event)
	}
	return json.Marshal(w)
}

// DecodeEvent parses a bridge JSON frame into its variant.
func DecodeEvent(data []byte) (TransportEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	meta := EventMeta{SessionID: w.SessionID, Timestamp: w.Timestamp}
	switch w.Type {
	case EventSessionStarted:
		ev := SessionStarted{EventMeta: meta}
		if w.PID != nil {
			ev.PID = *w.PID
		}
		return ev, nil
	case EventOutput:
		return Output{EventMeta: meta, Data: w.Data}, nil
	case EventError:
		return ErrorEvent{EventMeta: meta, Data: w.Data, Error: w.Error}, nil
	case EventProcessExit:
		ev := ProcessExit{EventMeta: meta}
		if w.Code != nil {
			ev.Code = *w.Code
		}
		return ev, nil
	case EventServerError:
		return ServerError{EventMeta: meta, Error: w.Error}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, w.Type)
	}
}
