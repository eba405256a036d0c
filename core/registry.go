package core

import (
	"sync"

	"pkt.systems/termlink/schema"
)

// Registry is the ordered session store owned by a service. All mutation
// goes through its methods; readers receive copies.
type Registry struct {
	mu       sync.Mutex
	sessions map[schema.SessionID]*sessionState
	order    []schema.SessionID
	active   schema.SessionID
}

type sessionState struct {
	id       schema.SessionID
	workDir  string
	isActive bool
	messages []schema.Message
}

func (s *sessionState) snapshot() schema.Session {
	return schema.Session{
		ID:               s.id,
		WorkingDirectory: s.workDir,
		IsActive:         s.isActive,
		Messages:         s.messages,
	}.Clone()
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[schema.SessionID]*sessionState)}
}

// Add inserts a session. Duplicate ids are rejected with ErrDuplicateSession.
func (r *Registry) Add(session schema.Session) error {
	if session.ID == "" {
		return schema.ErrUnknownSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return schema.ErrDuplicateSession
	}
	r.sessions[session.ID] = &sessionState{
		id:       session.ID,
		workDir:  session.WorkingDirectory,
		isActive: session.IsActive,
		messages: append([]schema.Message(nil), session.Messages...),
	}
	r.order = append(r.order, session.ID)
	return nil
}

// SetActive selects a session.
func (r *Registry) SetActive(id schema.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[id]
	if !ok {
		return schema.ErrUnknownSession
	}
	if !state.isActive {
		return schema.ErrSessionClosed
	}
	r.active = id
	return nil
}

// Append adds message to the session history. Unknown ids and unknown
// message kinds are ignored and report false.
func (r *Registry) Append(id schema.SessionID, message schema.Message) bool {
	if !message.Kind.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[id]
	if !ok {
		return false
	}
	state.messages = append(state.messages, message)
	return true
}

// Active returns the selected session.
func (r *Registry) Active() (schema.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return schema.Session{}, false
	}
	state, ok := r.sessions[r.active]
	if !ok {
		return schema.Session{}, false
	}
	return state.snapshot(), true
}

// ActiveID returns the selected session id, empty when none.
func (r *Registry) ActiveID() schema.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Get returns a copy of the session.
func (r *Registry) Get(id schema.SessionID) (schema.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[id]
	if !ok {
		return schema.Session{}, false
	}
	return state.snapshot(), true
}

// List returns copies of all sessions in insertion order.
func (r *Registry) List() []schema.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.Session, 0, len(r.order))
	for _, id := range r.order {
		if state := r.sessions[id]; state != nil {
			out = append(out, state.snapshot())
		}
	}
	return out
}

// Close marks a session inactive and unselects it. The history is kept.
// It reports whether the session was the selected one.
func (r *Registry) Close(id schema.SessionID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[id]
	if !ok {
		return false, schema.ErrUnknownSession
	}
	state.isActive = false
	if r.active == id {
		r.active = ""
		return true, nil
	}
	return false, nil
}

// Clear drops every session and the selection.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[schema.SessionID]*sessionState)
	r.order = nil
	r.active = ""
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
