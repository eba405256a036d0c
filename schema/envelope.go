package schema

// EnvelopeType is the discriminator of a terminal surface envelope.
type EnvelopeType string

const (
	// EnvelopeReady is sent by the surface once it finished initializing.
	EnvelopeReady EnvelopeType = "ready"
	// EnvelopeInput carries one line typed by the user.
	EnvelopeInput EnvelopeType = "input"
	// EnvelopeWrite carries raw text for the surface to display.
	EnvelopeWrite EnvelopeType = "write"
)

// Envelope is the JSON message exchanged with a terminal surface.
type Envelope struct {
	Type EnvelopeType `json:"type"`
	Data string       `json:"data,omitempty"`
}

// MessageEvent announces a message appended to a session history.
type MessageEvent struct {
	SessionID SessionID
	Message   Message
}

// SessionEventType describes a session lifecycle change.
type SessionEventType string

const (
	// SessionEventCreated fires after a session was registered.
	SessionEventCreated SessionEventType = "created"
	// SessionEventSelected fires when the selected session changes.
	SessionEventSelected SessionEventType = "selected"
	// SessionEventClosed fires after a session was terminated.
	SessionEventClosed SessionEventType = "closed"
)

// SessionEvent announces a session lifecycle change.
type SessionEvent struct {
	Type      SessionEventType
	SessionID SessionID
}
