package surface

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/eventbus"
	"pkt.systems/termlink/schema"
)

const (
	// Banner is written when a front end reports ready.
	Banner = "termlink terminal initialized\r\n"
	// Prompt follows the banner and every forwarded message.
	Prompt = "$ "
)

// WriteFunc delivers raw terminal text to one front end.
type WriteFunc func(text string) error

// Terminal binds one front-end connection to the service. Front ends report
// ready and input lines; the terminal writes back the banner, command errors,
// and every assistant or error message appended to the selected session.
type Terminal struct {
	service  core.Service
	bus      *eventbus.Bus
	defaults schema.CreateSessionRequest
	write    WriteFunc
	logger   pslog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// NewTerminal constructs a terminal for one connection.
func NewTerminal(service core.Service, bus *eventbus.Bus, defaults schema.CreateSessionRequest, write WriteFunc, logger pslog.Logger) *Terminal {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Terminal{
		service:  service,
		bus:      bus,
		defaults: defaults,
		write:    write,
		logger:   logger,
	}
}

// Ready writes the banner, creates a session when the service is connected
// and none is selected, and starts forwarding history updates.
func (t *Terminal) Ready(ctx context.Context) error {
	t.follow()
	if err := t.write(Banner + Prompt); err != nil {
		return err
	}
	if _, ok := t.service.ActiveSession(); ok {
		return nil
	}
	if !t.service.Status().Connected {
		t.logger.Debug("terminal ready without connection")
		return nil
	}
	id, err := t.service.CreateSession(ctx, t.defaults)
	if err != nil {
		t.logger.Warn("terminal session create failed", "err", err)
		return t.writeError(err)
	}
	t.logger.Info("terminal session created", "session", id)
	return nil
}

// Input forwards one line to the selected session.
func (t *Terminal) Input(ctx context.Context, line string) error {
	t.follow()
	if err := t.service.SendCommand(ctx, line); err != nil {
		t.logger.Debug("terminal input failed", "err", err)
		return t.writeError(err)
	}
	return nil
}

// Close stops forwarding and waits for the forwarder to exit.
func (t *Terminal) Close() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *Terminal) follow() {
	if t.bus == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ch, cancel := t.bus.SubscribeAll()
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.forward(ch, t.done)
}

// forward writes history updates for the selected session. Each backend
// event reaches history once per matching handler, so a message equal to the
// previous one seen for the same session is only written once.
func (t *Terminal) forward(ch <-chan eventbus.Event, done chan struct{}) {
	defer close(done)
	last := make(map[schema.SessionID]schema.Message)
	for event := range ch {
		if event.Type != eventbus.EventMessage {
			continue
		}
		msg := event.Message.Message
		id := event.SessionID()
		prev, seen := last[id]
		last[id] = msg
		if seen && sameEntry(prev, msg) {
			continue
		}
		active, ok := t.service.ActiveSession()
		if !ok || active.ID != id {
			continue
		}
		text, ok := Render(msg)
		if !ok {
			continue
		}
		if err := t.write(text + Prompt); err != nil {
			t.logger.Debug("terminal write failed", "err", err)
		}
	}
}

func sameEntry(a, b schema.Message) bool {
	return a.Kind == b.Kind && a.Role == b.Role && a.Content == b.Content && a.Timestamp == b.Timestamp
}

// Render returns the terminal text for a history entry. User echoes are
// skipped because the front end already shows typed input.
func Render(msg schema.Message) (string, bool) {
	switch {
	case msg.Kind == schema.MessageError:
		return msg.Content, true
	case msg.Role == schema.RoleAssistant:
		return msg.Content, true
	default:
		return "", false
	}
}

func (t *Terminal) writeError(err error) error {
	if err == nil {
		return nil
	}
	return t.write(fmt.Sprintf("error: %s\r\n", err))
}
