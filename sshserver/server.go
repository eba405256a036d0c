package sshserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/eventbus"
	"pkt.systems/termlink/internal/logx"
	"pkt.systems/termlink/schema"
	"pkt.systems/termlink/surface"
)

// Server exposes the terminal over SSH.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	Service     core.Service
	EventBus    *eventbus.Bus
	Auth        *Authenticator
	// Session is used for sessions created when a client connects.
	Session schema.CreateSessionRequest
	logger  pslog.Logger
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = logx.WithSurface(ctx, "ssh")
	}
	if s.Auth == nil {
		return errors.New("authenticator is required for SSH")
	}
	if s.Service == nil {
		return errors.New("service is required for SSH")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	if s.Auth.RequiresTOTP() {
		server.KeyboardInteractiveHandler = s.handleKeyboardInteractive
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("ssh listening", "addr", s.Addr, "totp", s.Auth.RequiresTOTP())

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handlePublicKey accepts listed keys outright unless a second factor is
// configured, in which case the key only unlocks the TOTP challenge.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	ok, err := s.Auth.HasKey(key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	if s.Auth.RequiresTOTP() {
		ctx.SetValue(loginPubKeyOK, true)
		log.Debug("ssh pubkey accepted", "next", "totp")
		return false
	}
	log.Info("ssh pubkey accepted")
	return true
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx))
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.Auth.ValidateTOTP(answers[0]); err != nil {
		log.Warn("ssh totp rejected", "err", err)
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	ctx := logx.ContextWithSurfaceLogger(sess.Context(), log, "ssh")

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}
	log.Info("ssh session opened", "term", pty.Term)

	tty := term.NewTerminal(sess, "")
	_ = tty.SetSize(pty.Window.Width, pty.Window.Height)
	go func() {
		for win := range winCh {
			_ = tty.SetSize(win.Width, win.Height)
		}
	}()

	write := func(text string) error {
		_, err := tty.Write([]byte(text))
		return err
	}
	ui := surface.NewTerminal(s.Service, s.EventBus, s.Session, write, log)
	defer ui.Close()
	if err := ui.Ready(ctx); err != nil {
		log.Warn("ssh session ready failed", "err", err)
		return
	}
	for {
		line, err := tty.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("ssh read failed", "err", err)
			}
			break
		}
		switch strings.TrimSpace(line) {
		case "":
			_ = write(surface.Prompt)
			continue
		case "exit", "logout":
			log.Info("ssh session closed", "reason", line)
			return
		}
		if err := ui.Input(ctx, line); err != nil {
			log.Debug("ssh write failed", "err", err)
			break
		}
	}
	log.Info("ssh session closed", "term", pty.Term)
}
