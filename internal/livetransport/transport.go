package livetransport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/schema"
)

// DefaultSocketPath is where the backend bridge listens on Termux.
const DefaultSocketPath = "/data/data/com.termux/files/usr/tmp/claude-code.sock"

// DefaultWorkingDir is used when a session start carries no directory.
const DefaultWorkingDir = "/storage/emulated/0"

// Config configures the live transport.
type Config struct {
	SocketPath string
	Logger     pslog.Logger
}

// Transport relays sessions to a real backend through a Bridge.
type Transport struct {
	bridge     Bridge
	socketPath string
	router     *core.Router
	logger     pslog.Logger

	mu        sync.Mutex
	connected bool
	stop      chan struct{}
}

// New constructs a live transport around bridge.
func New(bridge Bridge, cfg Config) (*Transport, error) {
	if bridge == nil {
		return nil, errors.New("bridge is required")
	}
	path := strings.TrimSpace(cfg.SocketPath)
	if path == "" {
		path = DefaultSocketPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Transport{
		bridge:     bridge,
		socketPath: path,
		router:     core.NewRouter(logger),
		logger:     logger.With("transport", "live"),
	}, nil
}

// SocketPath returns the bridge socket this transport dials.
func (t *Transport) SocketPath() string {
	return t.socketPath
}

// Connect dials the bridge and starts pumping its event streams.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	log := pslog.Ctx(ctx)
	if err := t.bridge.Connect(ctx, t.socketPath); err != nil {
		log.Warn("livetransport connect failed", "socket", t.socketPath, "err", err)
		return classify("connect", err, core.TransportErrorUnavailable)
	}
	t.connected = true
	t.stop = make(chan struct{})
	go t.pump(t.bridge.Events(), t.bridge.Errors(), t.stop)
	log.Info("livetransport connected", "socket", t.socketPath)
	return nil
}

// Send forwards a raw message to the bridge.
func (t *Transport) Send(ctx context.Context, message string) error {
	if !t.isConnected() {
		return notConnected("send")
	}
	if err := t.bridge.Send(ctx, message); err != nil {
		return classify("send", err, core.TransportErrorRejected)
	}
	return nil
}

// StartSession asks the bridge to allocate a backend session.
func (t *Transport) StartSession(ctx context.Context, req core.StartSessionRequest) error {
	if !t.isConnected() {
		return notConnected("start_session")
	}
	workDir := req.WorkingDirectory
	if strings.TrimSpace(workDir) == "" {
		workDir = DefaultWorkingDir
	}
	if err := t.bridge.StartSession(ctx, string(req.SessionID), req.Credential, workDir); err != nil {
		return classify("start_session", err, core.TransportErrorRejected)
	}
	return nil
}

// SendInput forwards one line to the backend session.
func (t *Transport) SendInput(ctx context.Context, sessionID schema.SessionID, text string) error {
	if !t.isConnected() {
		return notConnected("send_input")
	}
	if err := t.bridge.SendInput(ctx, string(sessionID), text); err != nil {
		return classify("send_input", err, core.TransportErrorRejected)
	}
	return nil
}

// StopSession ends a backend session when the bridge supports it.
func (t *Transport) StopSession(ctx context.Context, sessionID schema.SessionID) error {
	if !t.isConnected() {
		return notConnected("stop_session")
	}
	stopper, ok := t.bridge.(SessionStopper)
	if !ok {
		return nil
	}
	if err := stopper.StopSession(ctx, string(sessionID)); err != nil {
		return classify("stop_session", err, core.TransportErrorRejected)
	}
	return nil
}

// Disconnect stops the pump, drops every handler and closes the bridge.
// Calling it on a transport that never connected only clears handlers.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	t.router.Clear()
	if !wasConnected {
		return nil
	}
	if err := t.bridge.Disconnect(ctx); err != nil {
		pslog.Ctx(ctx).Warn("livetransport disconnect failed", "err", err)
		return classify("disconnect", err, core.TransportErrorUnknown)
	}
	pslog.Ctx(ctx).Info("livetransport disconnected")
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

func (t *Transport) pump(events <-chan []byte, errs <-chan string, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-events:
			if !ok {
				events = nil
				if errs == nil {
					return
				}
				continue
			}
			event, err := schema.DecodeEvent(frame)
			if err != nil {
				t.logger.Warn("livetransport frame dropped", "err", err, "len", len(frame))
				continue
			}
			t.router.Dispatch(event)
		case text, ok := <-errs:
			if !ok {
				errs = nil
				if events == nil {
					return
				}
				continue
			}
			t.logger.Warn("livetransport socket error", "err", text)
			t.router.Dispatch(schema.ErrorEvent{Error: text})
		}
	}
}

func notConnected(op string) error {
	return core.NewTransportError(core.TransportErrorNotConnected, op, schema.ErrNotConnected)
}

// classify keeps an existing transport classification and marks the failure
// as a connection error.
func classify(op string, err error, fallback core.TransportErrorKind) error {
	kind := fallback
	var transportErr *core.TransportError
	if errors.As(err, &transportErr) {
		kind = transportErr.Kind
	}
	return core.NewTransportError(kind, op, fmt.Errorf("%w: %w", schema.ErrConnection, err))
}
