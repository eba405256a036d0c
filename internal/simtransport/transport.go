package simtransport

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/schema"
)

const (
	// DefaultOutputDelay matches the simulated backend's think time per line.
	DefaultOutputDelay = 500 * time.Millisecond
	// DefaultStartDelay is the simulated session boot time.
	DefaultStartDelay = time.Second
	// ConnectPID is the pid reported for the sentinel session on connect.
	ConnectPID = 12345
)

// Config controls the simulated backend timing.
type Config struct {
	OutputDelay time.Duration
	StartDelay  time.Duration
	Logger      pslog.Logger
	Clock       func() time.Time
	// PID returns the pid reported for started sessions. Random when nil.
	PID func() int
}

// Transport is an in-process backend that answers every line with a canned
// response. Events are delivered on one scheduler goroutine in the order
// they were emitted.
type Transport struct {
	router *core.Router
	cfg    Config
	logger pslog.Logger

	mu        sync.Mutex
	connected bool
	gen       uint64
	queue     []scheduled
	wake      chan struct{}
	stop      chan struct{}
}

type scheduled struct {
	gen   uint64
	due   time.Time
	event schema.TransportEvent
}

// New constructs a disconnected simulated transport.
func New(cfg Config) *Transport {
	if cfg.OutputDelay <= 0 {
		cfg.OutputDelay = DefaultOutputDelay
	}
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = DefaultStartDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PID == nil {
		cfg.PID = func() int { return 1000 + rand.IntN(30000) }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Transport{
		router: core.NewRouter(logger),
		cfg:    cfg,
		logger: logger.With("transport", "simulated"),
	}
}

// Connect starts the scheduler and announces the sentinel session.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = true
	t.gen++
	t.queue = nil
	t.wake = make(chan struct{}, 1)
	t.stop = make(chan struct{})
	go t.run(t.gen, t.wake, t.stop)
	t.mu.Unlock()

	pslog.Ctx(ctx).Info("simtransport connected")
	t.schedule(0, schema.SessionStarted{
		EventMeta: schema.EventMeta{SessionID: schema.MockSessionID},
		PID:       ConnectPID,
	})
	return nil
}

// StartSession reports a started session after the configured delay.
func (t *Transport) StartSession(ctx context.Context, req core.StartSessionRequest) error {
	if !t.isConnected() {
		return core.NewTransportError(core.TransportErrorNotConnected, "start_session", schema.ErrNotConnected)
	}
	pid := t.cfg.PID()
	pslog.Ctx(ctx).Debug("simtransport session start", "session", req.SessionID, "pid", pid)
	t.schedule(t.cfg.StartDelay, schema.SessionStarted{
		EventMeta: schema.EventMeta{SessionID: req.SessionID},
		PID:       pid,
	})
	return nil
}

// SendInput schedules the canned response for text.
func (t *Transport) SendInput(ctx context.Context, sessionID schema.SessionID, text string) error {
	if !t.isConnected() {
		return core.NewTransportError(core.TransportErrorNotConnected, "send_input", schema.ErrNotConnected)
	}
	pslog.Ctx(ctx).Debug("simtransport input", "session", sessionID, "len", len(text))
	t.schedule(t.cfg.OutputDelay, schema.Output{
		EventMeta: schema.EventMeta{SessionID: sessionID},
		Data:      Response(text),
	})
	return nil
}

// StopSession reports a clean process exit for the session.
func (t *Transport) StopSession(ctx context.Context, sessionID schema.SessionID) error {
	if !t.isConnected() {
		return core.NewTransportError(core.TransportErrorNotConnected, "stop_session", schema.ErrNotConnected)
	}
	t.schedule(0, schema.ProcessExit{EventMeta: schema.EventMeta{SessionID: sessionID}, Code: 0})
	return nil
}

// Disconnect drops pending events and every handler. It may be called from
// inside a handler.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	t.gen++
	t.queue = nil
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()
	t.router.Clear()
	if wasConnected {
		pslog.Ctx(ctx).Info("simtransport disconnected")
	}
	return nil
}

// OnEvent registers handler for key.
func (t *Transport) OnEvent(key schema.HandlerKey, handler core.EventHandler) {
	t.router.Handle(key, handler)
}

func (t *Transport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) schedule(delay time.Duration, event schema.TransportEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.queue = append(t.queue, scheduled{gen: t.gen, due: time.Now().Add(delay), event: event})
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transport) run(gen uint64, wake <-chan struct{}, stop <-chan struct{}) {
	for {
		t.mu.Lock()
		var next *scheduled
		if t.gen == gen && len(t.queue) > 0 {
			head := t.queue[0]
			next = &head
		}
		t.mu.Unlock()

		if next == nil {
			select {
			case <-stop:
				return
			case <-wake:
				continue
			}
		}
		if wait := time.Until(next.due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		t.mu.Lock()
		if t.gen != gen || len(t.queue) == 0 {
			t.mu.Unlock()
			continue
		}
		item := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		t.router.Dispatch(stamp(item.event, t.cfg.Clock()))
	}
}

func stamp(event schema.TransportEvent, now time.Time) schema.TransportEvent {
	ts := schema.FormatTimestamp(now)
	switch ev := event.(type) {
	case schema.SessionStarted:
		ev.Timestamp = ts
		return ev
	case schema.Output:
		ev.Timestamp = ts
		return ev
	case schema.ProcessExit:
		ev.Timestamp = ts
		return ev
	default:
		return event
	}
}
