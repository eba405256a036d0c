package termlink

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/eventbus"
	"pkt.systems/termlink/schema"
	"pkt.systems/termlink/sshserver"
	"pkt.systems/termlink/surface"
)

// Server composes the terminal surfaces around one core service.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Service() core.Service
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    surface.Config
	SSH     sshserver.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
}

// WithHTTP enables the websocket terminal surface.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH terminal surface.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New constructs a composable termlink server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no surfaces enabled")
	}
	if deps.ServiceDeps.Transport == nil {
		return nil, errors.New("transport dependency is required")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	serviceDeps := deps.ServiceDeps
	bus := eventbus.New(serviceDeps.Logger)
	if serviceDeps.EventSink == nil {
		serviceDeps.EventSink = bus
	} else {
		serviceDeps.EventSink = eventFanout{sinks: []core.EventSink{serviceDeps.EventSink, bus}}
	}
	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}

	sessionDefaults := schema.CreateSessionRequest{
		Credential:       cfg.Service.Credential,
		WorkingDirectory: cfg.Service.DefaultWorkingDirectory,
	}
	var httpSrv *surface.Server
	if options.enableHTTP {
		httpCfg := cfg.HTTP
		httpCfg.Session = sessionDefaults
		httpSrv = surface.NewServer(httpCfg, service, bus)
	}
	var sshSrv *sshserver.Server
	if options.enableSSH {
		auth, err := sshserver.NewAuthenticator(cfg.SSH.AuthorizedKeysPath, cfg.SSH.TOTPSecret)
		if err != nil {
			return nil, err
		}
		sshSrv = &sshserver.Server{
			Addr:        cfg.SSH.Addr,
			HostKeyPath: cfg.SSH.HostKeyPath,
			Service:     service,
			EventBus:    bus,
			Auth:        auth,
			Session:     sessionDefaults,
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		httpSrv: httpSrv,
		sshSrv:  sshSrv,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	httpSrv *surface.Server
	sshSrv  *sshserver.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Service() core.Service {
	return s.service
}

// Start connects the service and launches the enabled surfaces. A failed
// connect is recorded on the service status and surfaces still start.
func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"ssh_addr", s.cfg.SSH.Addr,
	)
	if err := s.service.Initialize(s.ctx); err != nil {
		log.Warn("server transport unavailable", "err", err)
	}
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := s.httpSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableSSH && s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop disconnects the transport before canceling the surfaces.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.service != nil {
		if err := s.service.Shutdown(context.Background()); err != nil {
			log.Warn("server service shutdown failed", "err", err)
		} else {
			log.Info("server service shutdown ok")
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
