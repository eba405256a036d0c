package bridgegrpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pkt.systems/pslog"
	"pkt.systems/termlink/schema"
)

// Backend executes sessions on behalf of the bridge server.
type Backend interface {
	StartSession(ctx context.Context, sessionID, credential, workingDir string) error
	SendInput(ctx context.Context, sessionID, input string) error
	StopSession(ctx context.Context, sessionID string) error
	// Handle receives raw messages sent outside any session.
	Handle(ctx context.Context, message string) error
	// Events yields every event the backend emits, for all sessions.
	Events() <-chan schema.TransportEvent
}

// Server implements the bridge gRPC service and provides a ListenAndServe
// entrypoint.
type Server struct {
	cfg     Config
	backend Backend
	logger  pslog.Logger

	mu          sync.Mutex
	subscribers map[int]chan []byte
	nextSub     int

	lastPingUnix int64
}

// NewServer constructs a bridge gRPC server.
func NewServer(cfg Config, backend Backend) *Server {
	return &Server{cfg: cfg, backend: backend, subscribers: make(map[int]chan []byte)}
}

// ListenAndServe starts the gRPC server over a Unix domain socket. It returns
// when ctx ends or when no client pinged within the keepalive window.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.SocketPath == "" {
		return errors.New("bridge socket path is required")
	}
	if s.backend == nil {
		return errors.New("bridge backend is required")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.cfg.KeepaliveMisses <= 0 {
		s.cfg.KeepaliveMisses = 3
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&bridgeServiceDesc, s)
	s.logger.Info("bridge grpc listening", "socket", s.cfg.SocketPath)

	errCh := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setLastPing(time.Now())
	if s.cfg.KeepaliveInterval > 0 {
		go s.keepaliveLoop(runCtx, cancel, grpcServer)
	}
	go s.fanout(runCtx)
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-runCtx.Done():
		s.closeSubscribers()
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Ping updates the keepalive timer.
func (s *Server) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.setLastPing(time.Now())
	s.log(ctx).Trace("bridge ping")
	return &emptypb.Empty{}, nil
}

// Send passes a raw message to the backend.
func (s *Server) Send(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.backend.Handle(ctx, req.GetValue()); err != nil {
		s.log(ctx).Warn("bridge send failed", "err", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// StartSession allocates a backend session.
func (s *Server) StartSession(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	sessionID := stringField(req, fieldSessionID)
	if strings.TrimSpace(sessionID) == "" {
		s.log(ctx).Warn("bridge session start rejected", "err", "session_id required")
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	log := s.log(ctx).With("session", sessionID)
	workDir := stringField(req, fieldWorkingDir)
	log.Info("bridge session start", "workdir", workDir, "credential", stringField(req, fieldCredential) != "")
	if err := s.backend.StartSession(ctx, sessionID, stringField(req, fieldCredential), workDir); err != nil {
		log.Warn("bridge session start failed", "err", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// SendInput forwards a line to a backend session.
func (s *Server) SendInput(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	sessionID := stringField(req, fieldSessionID)
	if strings.TrimSpace(sessionID) == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	log := s.log(ctx).With("session", sessionID)
	input := stringField(req, fieldInput)
	log.Debug("bridge input", "len", len(input))
	if err := s.backend.SendInput(ctx, sessionID, input); err != nil {
		log.Warn("bridge input failed", "err", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Stop ends a backend session.
func (s *Server) Stop(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	sessionID := stringField(req, fieldSessionID)
	if strings.TrimSpace(sessionID) == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	if err := s.backend.StopSession(ctx, sessionID); err != nil {
		s.log(ctx).Warn("bridge session stop failed", "session", sessionID, "err", err)
		return nil, toStatus(err)
	}
	s.log(ctx).Info("bridge session stopped", "session", sessionID)
	return &emptypb.Empty{}, nil
}

// Events streams every backend event until the client goes away.
func (s *Server) Events(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, ch := s.subscribe()
	defer s.unsubscribe(id)
	log := s.log(ctx).With("subscriber", id)
	// Headers tell the client the subscription is live.
	if err := stream.SendHeader(metadata.Pairs("subscriber", strconv.Itoa(id))); err != nil {
		log.Warn("bridge events header failed", "err", err)
		return err
	}
	log.Debug("bridge events subscribed")
	for {
		select {
		case <-ctx.Done():
			log.Debug("bridge events unsubscribed")
			return nil
		case frame, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(wrapperspb.Bytes(frame)); err != nil {
				log.Warn("bridge events send failed", "err", err)
				return err
			}
		}
	}
}

func (s *Server) fanout(ctx context.Context) {
	events := s.backend.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			frame, err := schema.EncodeEvent(event)
			if err != nil {
				s.logger.Warn("bridge event encode failed", "type", event.Kind(), "err", err)
				continue
			}
			s.broadcast(frame)
		}
	}
}

func (s *Server) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
			s.logger.Warn("bridge event dropped", "subscriber", id, "reason", "subscriber full")
		}
	}
}

func (s *Server) subscribe() (int, <-chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	ch := make(chan []byte, 256)
	s.subscribers[s.nextSub] = ch
	return s.nextSub, ch
}

func (s *Server) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Server) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, schema.ErrUnknownSession):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, schema.ErrDuplicateSession):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) log(ctx context.Context) pslog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return pslog.Ctx(ctx)
}

func (s *Server) setLastPing(ts time.Time) {
	atomic.StoreInt64(&s.lastPingUnix, ts.UnixNano())
}

func (s *Server) lastPing() time.Time {
	val := atomic.LoadInt64(&s.lastPingUnix)
	if val == 0 {
		return time.Time{}
	}
	return time.Unix(0, val)
}

func (s *Server) keepaliveLoop(ctx context.Context, cancel context.CancelFunc, grpcServer *grpc.Server) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := s.lastPing()
			if last.IsZero() {
				continue
			}
			if time.Since(last) > time.Duration(s.cfg.KeepaliveMisses)*s.cfg.KeepaliveInterval {
				s.logger.Warn("bridge keepalive missed; shutting down", "last_ping", last.Format(time.RFC3339Nano), "interval", s.cfg.KeepaliveInterval, "misses", s.cfg.KeepaliveMisses)
				cancel()
				return
			}
		}
	}
}
