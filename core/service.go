package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termlink/internal/logx"
	"pkt.systems/termlink/schema"
)

// service implements the core session orchestration.
type service struct {
	cfg       schema.ServiceConfig
	transport Transport
	registry  *Registry
	sink      EventSink
	logger    pslog.Logger
	now       func() time.Time

	mu        sync.Mutex
	connected bool
	loading   int
	lastErr   error
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		cfg:       normalized,
		transport: deps.Transport,
		registry:  registry,
		sink:      deps.EventSink,
		logger:    logger,
		now:       clock,
	}, nil
}

func (s *service) Initialize(ctx context.Context) error {
	if ctx == nil {
		return schema.ErrMissingContext
	}
	defer s.beginLoading()()
	s.setLastError(nil)
	log := logx.Ctx(ctx)
	log.Info("service initialize start")

	if err := s.transport.Connect(ctx); err != nil {
		s.mu.Lock()
		s.connected = false
		s.lastErr = err
		s.mu.Unlock()
		log.Error("service initialize failed", "err", err)
		return err
	}
	s.transport.OnEvent(schema.WildcardKey, s.handleEvent)
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	log.Info("service initialized")
	return nil
}

func (s *service) CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.SessionID, error) {
	if ctx == nil {
		return "", schema.ErrMissingContext
	}
	defer s.beginLoading()()
	s.setLastError(nil)

	workDir := strings.TrimSpace(req.WorkingDirectory)
	if workDir == "" {
		workDir = s.cfg.DefaultWorkingDirectory
	}
	sessionID := newSessionID()
	log := logx.WithSession(ctx, sessionID)
	ctx = logx.ContextWithSessionLogger(ctx, log, sessionID)
	log.Info("service session create start", "workdir", workDir)

	if err := s.registry.Add(schema.Session{
		ID:               sessionID,
		WorkingDirectory: workDir,
		IsActive:         true,
	}); err != nil {
		s.setLastError(err)
		log.Warn("service session create failed", "err", err)
		return "", err
	}
	if err := s.registry.SetActive(sessionID); err != nil {
		s.setLastError(err)
		log.Warn("service session create failed", "err", err)
		return "", err
	}
	s.emitSessionEvent(schema.SessionEvent{Type: schema.SessionEventCreated, SessionID: sessionID})
	s.emitSessionEvent(schema.SessionEvent{Type: schema.SessionEventSelected, SessionID: sessionID})
	s.transport.OnEvent(schema.KeyFor(sessionID), s.handleEvent)

	if err := s.transport.StartSession(ctx, StartSessionRequest{
		SessionID:        sessionID,
		Credential:       req.Credential,
		WorkingDirectory: workDir,
	}); err != nil {
		s.setLastError(err)
		log.Error("service session start failed", "err", err)
		return "", err
	}
	log.Info("service session created")
	return sessionID, nil
}

func (s *service) SendCommand(ctx context.Context, text string) error {
	if ctx == nil {
		return schema.ErrMissingContext
	}
	s.setLastError(nil)
	sessionID := s.registry.ActiveID()
	if sessionID == "" {
		return schema.ErrNoActiveSession
	}
	log := logx.WithSession(ctx, sessionID)
	ctx = logx.ContextWithSessionLogger(ctx, log, sessionID)

	message := schema.Message{
		ID:        newMessageID(),
		Kind:      schema.MessageText,
		Role:      schema.RoleUser,
		Content:   text,
		Timestamp: schema.FormatTimestamp(s.now()),
	}
	s.appendMessage(log, sessionID, message)

	log.Debug("service send command", "len", len(text))
	if err := s.transport.SendInput(ctx, sessionID, text); err != nil {
		s.setLastError(err)
		log.Error("service send command failed", "err", err)
		return err
	}
	return nil
}

func (s *service) SetActiveSession(ctx context.Context, sessionID schema.SessionID) error {
	log := logx.WithSession(ctx, sessionID)
	if err := s.registry.SetActive(sessionID); err != nil {
		log.Warn("service session select failed", "err", err)
		return err
	}
	log.Info("service session selected")
	s.emitSessionEvent(schema.SessionEvent{Type: schema.SessionEventSelected, SessionID: sessionID})
	return nil
}

func (s *service) CloseSession(ctx context.Context, sessionID schema.SessionID) error {
	if ctx == nil {
		return schema.ErrMissingContext
	}
	log := logx.WithSession(ctx, sessionID)
	ctx = logx.ContextWithSessionLogger(ctx, log, sessionID)
	wasSelected, err := s.registry.Close(sessionID)
	if err != nil {
		log.Warn("service session close failed", "err", err)
		return err
	}
	s.transport.OnEvent(schema.KeyFor(sessionID), nil)
	s.emitSessionEvent(schema.SessionEvent{Type: schema.SessionEventClosed, SessionID: sessionID})
	if stopper, ok := s.transport.(SessionStopper); ok {
		if err := stopper.StopSession(ctx, sessionID); err != nil {
			s.setLastError(err)
			log.Warn("service session stop failed", "err", err)
			return err
		}
	}
	log.Info("service session closed", "was_selected", wasSelected)
	return nil
}

func (s *service) ActiveSession() (schema.Session, bool) {
	return s.registry.Active()
}

func (s *service) Session(sessionID schema.SessionID) (schema.Session, bool) {
	return s.registry.Get(sessionID)
}

func (s *service) Sessions() []schema.Session {
	return s.registry.List()
}

func (s *service) Status() schema.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.Status{
		Connected: s.connected,
		Loading:   s.loading > 0,
		LastError: s.lastErr,
	}
}

// Shutdown disconnects the transport even when Initialize never succeeded.
func (s *service) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logx.Ctx(ctx)
	err := s.transport.Disconnect(ctx)
	s.mu.Lock()
	s.connected = false
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.registry.Clear()
	if err != nil {
		log.Warn("service shutdown failed", "err", err)
		return err
	}
	log.Info("service shutdown")
	return nil
}

// handleEvent translates transport events into history entries.
func (s *service) handleEvent(event schema.TransportEvent) {
	sessionID := event.Session()
	if sessionID == "" {
		s.logger.Trace("service event dropped", "type", event.Kind(), "reason", "missing session")
		return
	}
	log := s.logger.With("session", sessionID)
	switch ev := event.(type) {
	case schema.SessionStarted:
		log.Info("service backend session started", "pid", ev.PID)
	case schema.Output:
		s.appendMessage(log, sessionID, schema.Message{
			ID:        newMessageID(),
			Kind:      schema.MessageText,
			Role:      schema.RoleAssistant,
			Content:   ev.Data,
			Timestamp: s.eventTimestamp(ev),
		})
	case schema.ErrorEvent:
		s.appendMessage(log, sessionID, schema.Message{
			ID:        newMessageID(),
			Kind:      schema.MessageError,
			Content:   ev.Text(),
			Timestamp: s.eventTimestamp(ev),
			Formatted: true,
		})
	case schema.ProcessExit:
		log.Info("service backend process exited", "code", ev.Code)
	case schema.ServerError:
		log.Warn("service backend server error", "err", ev.Error, "kind", schema.ErrBackendReported)
	default:
		log.Debug("service event ignored", "type", event.Kind())
	}
}

func (s *service) appendMessage(log pslog.Logger, sessionID schema.SessionID, message schema.Message) {
	if !s.registry.Append(sessionID, message) {
		log.Debug("service message dropped", "reason", "rejected by registry", "kind", message.Kind)
		return
	}
	log.Trace("service message appended", "kind", message.Kind, "role", message.Role, "len", len(message.Content))
	if s.sink != nil {
		s.sink.OnMessage(schema.MessageEvent{SessionID: sessionID, Message: message})
	}
}

func (s *service) eventTimestamp(event schema.TransportEvent) string {
	if ts := event.EventTimestamp(); ts != "" {
		return ts
	}
	return schema.FormatTimestamp(s.now())
}

func (s *service) emitSessionEvent(event schema.SessionEvent) {
	if s.sink != nil {
		s.sink.OnSessionEvent(event)
	}
}

func (s *service) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// beginLoading raises the loading flag and returns its release.
func (s *service) beginLoading() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}
