package schema

import "time"

// MessageKind classifies a history entry.
type MessageKind string

const (
	// MessageText is plain terminal text.
	MessageText MessageKind = "text"
	// MessageCode is a code block.
	MessageCode MessageKind = "code"
	// MessageTool is a tool invocation record.
	MessageTool MessageKind = "tool"
	// MessageError is a backend-reported error.
	MessageError MessageKind = "error"
	// MessageGeneric is an unclassified message.
	MessageGeneric MessageKind = "message"
)

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageCode, MessageTool, MessageError, MessageGeneric:
		return true
	default:
		return false
	}
}

// Role attributes a message to a speaker. RoleNone marks system-level entries.
type Role string

const (
	// RoleNone means no attributed speaker.
	RoleNone Role = ""
	// RoleUser marks input typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks backend output.
	RoleAssistant Role = "assistant"
)

// Message is one entry of a session history.
type Message struct {
	ID        MessageID
	Kind      MessageKind
	Role      Role
	Content   string
	Timestamp string
	// Formatted marks content that is already formatted for display.
	Formatted bool
}

// TimestampLayout matches JavaScript's Date.toISOString output.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
