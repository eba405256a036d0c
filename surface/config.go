package surface

import "pkt.systems/termlink/schema"

// Config defines the websocket terminal surface settings.
type Config struct {
	Addr           string
	ReadLimitBytes int64
	// Session is used for sessions created when a terminal reports ready.
	Session schema.CreateSessionRequest
}
