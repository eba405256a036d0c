package surface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/eventbus"
	"pkt.systems/termlink/internal/logx"
	"pkt.systems/termlink/schema"
)

const defaultReadLimit = 64 * 1024

// Server exposes the terminal over a websocket.
type Server struct {
	cfg     Config
	service core.Service
	bus     *eventbus.Bus
	mux     *http.ServeMux
}

// NewServer constructs the websocket surface.
func NewServer(cfg Config, service core.Service, bus *eventbus.Bus) *Server {
	if cfg.ReadLimitBytes <= 0 {
		cfg.ReadLimitBytes = defaultReadLimit
	}
	s := &Server{cfg: cfg, service: service, bus: bus, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /terminal", s.handleTerminal)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	return withRequestLogging(s.mux)
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return ListenAndServe(ctx, s.cfg.Addr, s.Handler())
}

type healthResponse struct {
	Connected bool   `json:"connected"`
	Loading   bool   `json:"loading"`
	LastError string `json:"last_error,omitempty"`
	Sessions  int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.service.Status()
	resp := healthResponse{
		Connected: status.Connected,
		Loading:   status.Loading,
		Sessions:  len(s.service.Sessions()),
	}
	if status.LastError != nil {
		resp.LastError = status.LastError.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	if !status.Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	logger := logx.WithSurface(r.Context(), "websocket").With("remote", clientIP(r))
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("terminal websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.cfg.ReadLimitBytes)

	ctx := logx.ContextWithSurfaceLogger(r.Context(), logger, "websocket")
	write := func(text string) error {
		data, err := json.Marshal(schema.Envelope{Type: schema.EnvelopeWrite, Data: text})
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, data)
	}
	term := NewTerminal(s.service, s.bus, s.cfg.Session, write, logger)
	defer term.Close()
	logger.Info("terminal connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				logger.Info("terminal disconnected")
			} else {
				logger.Debug("terminal read failed", "err", err)
			}
			return
		}
		var env schema.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("terminal frame invalid", "err", err)
			continue
		}
		switch env.Type {
		case schema.EnvelopeReady:
			err = term.Ready(ctx)
		case schema.EnvelopeInput:
			err = term.Input(ctx, env.Data)
		default:
			logger.Warn("terminal frame unknown", "type", env.Type)
			continue
		}
		if err != nil {
			logger.Debug("terminal write failed", "err", err)
			return
		}
	}
}
