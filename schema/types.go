package schema

// SessionID identifies a terminal session. Assigned by the service, never reused.
type SessionID string

// MessageID identifies a history entry.
type MessageID string

// HandlerKey selects which events a router handler receives: a concrete
// session id or WildcardKey.
type HandlerKey string

// WildcardKey receives every event regardless of session.
const WildcardKey HandlerKey = "*"

// KeyFor returns the handler key for a session id.
func KeyFor(id SessionID) HandlerKey {
	return HandlerKey(id)
}

// MockSessionID is the sentinel session announced by the simulated transport on connect.
const MockSessionID SessionID = "mock-session"

// Session is a read-only view of one terminal conversation.
type Session struct {
	ID               SessionID
	WorkingDirectory string
	IsActive         bool
	Messages         []Message
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	return out
}

// Status reports the connection state surfaced to front ends.
type Status struct {
	Connected bool
	Loading   bool
	LastError error
}
