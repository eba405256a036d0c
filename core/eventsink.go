package core

import "pkt.systems/termlink/schema"

// EventSink receives history and session lifecycle notifications from the core service.
type EventSink interface {
	OnMessage(event schema.MessageEvent)
	OnSessionEvent(event schema.SessionEvent)
}
