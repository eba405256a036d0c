package termlink

import (
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnMessage(event schema.MessageEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnMessage(event)
	}
}

func (f eventFanout) OnSessionEvent(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSessionEvent(event)
	}
}
