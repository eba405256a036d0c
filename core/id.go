package core

import (
	"github.com/google/uuid"

	"pkt.systems/termlink/schema"
)

func newSessionID() schema.SessionID {
	return schema.SessionID("session-" + uuid.Must(uuid.NewV7()).String())
}

// Message ids are uuid v7: time ordered with a random tail.
func newMessageID() schema.MessageID {
	return schema.MessageID("msg-" + uuid.Must(uuid.NewV7()).String())
}
