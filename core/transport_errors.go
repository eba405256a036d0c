package core

import "fmt"

// TransportErrorKind classifies transport failures for user-facing hints.
type TransportErrorKind string

const (
	// TransportErrorUnknown is an uncategorized transport failure.
	TransportErrorUnknown TransportErrorKind = "unknown"
	// TransportErrorUnavailable indicates the backend is unreachable.
	TransportErrorUnavailable TransportErrorKind = "unavailable"
	// TransportErrorNotConnected indicates the transport was not connected.
	TransportErrorNotConnected TransportErrorKind = "not_connected"
	// TransportErrorRejected indicates the backend refused the request.
	TransportErrorRejected TransportErrorKind = "rejected"
	// TransportErrorTimeout indicates the backend timed out.
	TransportErrorTimeout TransportErrorKind = "timeout"
	// TransportErrorCanceled indicates the request was canceled.
	TransportErrorCanceled TransportErrorKind = "canceled"
)

// TransportError wraps transport failures with a stable classification.
type TransportError struct {
	Kind    TransportErrorKind
	Op      string
	Message string
	Err     error
}

// NewTransportError constructs a classified transport error.
func NewTransportError(kind TransportErrorKind, op string, err error) *TransportError {
	return &TransportError{Kind: kind, Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
		}
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("transport %s failed", e.Op)
	}
	return "transport error"
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
