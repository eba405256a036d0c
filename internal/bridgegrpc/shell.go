package bridgegrpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pkt.systems/pslog"
	"pkt.systems/termlink/schema"
)

// CredentialEnv is the variable a session credential is exported as.
const CredentialEnv = "ANTHROPIC_API_KEY"

// ShellConfig controls the shell backend.
type ShellConfig struct {
	// Shell runs each input line as `<shell> -c <line>`. Defaults to sh.
	Shell  string
	Env    []string
	Logger pslog.Logger
	Clock  func() time.Time
}

// ShellBackend runs every input line of a session as a shell command in the
// session's working directory. stdout lines become OUTPUT events, stderr
// lines become ERROR events and the exit status becomes PROCESS_EXIT.
type ShellBackend struct {
	cfg    ShellConfig
	logger pslog.Logger
	events chan schema.TransportEvent

	mu       sync.Mutex
	sessions map[string]*shellSession
}

type shellSession struct {
	workDir    string
	credential string
	procs      map[int]*exec.Cmd
}

// NewShellBackend constructs a shell backend.
func NewShellBackend(cfg ShellConfig) *ShellBackend {
	if strings.TrimSpace(cfg.Shell) == "" {
		cfg.Shell = "sh"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &ShellBackend{
		cfg:      cfg,
		logger:   logger,
		events:   make(chan schema.TransportEvent, 256),
		sessions: make(map[string]*shellSession),
	}
}

// Events yields every event emitted by the backend.
func (b *ShellBackend) Events() <-chan schema.TransportEvent {
	return b.events
}

// StartSession registers a session and reports it started with the bridge pid.
func (b *ShellBackend) StartSession(ctx context.Context, sessionID, credential, workingDir string) error {
	workDir := strings.TrimSpace(workingDir)
	if workDir != "" {
		info, err := os.Stat(workDir)
		if err != nil {
			return fmt.Errorf("working dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working dir %q is not a directory", workDir)
		}
	}
	b.mu.Lock()
	if _, ok := b.sessions[sessionID]; ok {
		b.mu.Unlock()
		return schema.ErrDuplicateSession
	}
	b.sessions[sessionID] = &shellSession{workDir: workDir, credential: credential, procs: make(map[int]*exec.Cmd)}
	b.mu.Unlock()

	pslog.Ctx(ctx).Info("shell session started", "session", sessionID, "workdir", workDir)
	b.emit(schema.SessionStarted{EventMeta: b.meta(sessionID), PID: os.Getpid()})
	return nil
}

// SendInput starts input as a shell command. Output is reported through
// Events as the command runs.
func (b *ShellBackend) SendInput(ctx context.Context, sessionID, input string) error {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return schema.ErrUnknownSession
	}
	line := strings.TrimSpace(input)
	if line == "" {
		return nil
	}

	cmd := exec.Command(b.cfg.Shell, "-c", line)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if session.workDir != "" {
		cmd.Dir = session.workDir
	}
	env := append(os.Environ(), b.cfg.Env...)
	if session.credential != "" {
		env = append(filterEnv(env, CredentialEnv), CredentialEnv+"="+session.credential)
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		pslog.Ctx(ctx).Warn("shell command start failed", "session", sessionID, "err", err)
		return err
	}
	pid := cmd.Process.Pid
	b.mu.Lock()
	session.procs[pid] = cmd
	b.mu.Unlock()

	log := b.logger.With("session", sessionID, "pid", pid)
	log.Debug("shell command started", "command_len", len(line))
	go b.run(log, sessionID, session, cmd, stdout, stderr)
	return nil
}

// StopSession kills every running command of the session and forgets it.
func (b *ShellBackend) StopSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	var procs []*exec.Cmd
	if ok {
		for _, cmd := range session.procs {
			procs = append(procs, cmd)
		}
	}
	b.mu.Unlock()
	if !ok {
		return schema.ErrUnknownSession
	}
	for _, cmd := range procs {
		if err := killGroup(cmd); err != nil {
			pslog.Ctx(ctx).Warn("shell command kill failed", "session", sessionID, "err", err)
		}
	}
	return nil
}

// Handle logs raw messages; the shell backend has no session-less commands.
func (b *ShellBackend) Handle(ctx context.Context, message string) error {
	pslog.Ctx(ctx).Debug("shell backend message", "len", len(message))
	return nil
}

// Close kills every running command.
func (b *ShellBackend) Close() {
	b.mu.Lock()
	var procs []*exec.Cmd
	for id, session := range b.sessions {
		for _, cmd := range session.procs {
			procs = append(procs, cmd)
		}
		delete(b.sessions, id)
	}
	b.mu.Unlock()
	for _, cmd := range procs {
		_ = killGroup(cmd)
	}
}

func (b *ShellBackend) run(log pslog.Logger, sessionID string, session *shellSession, cmd *exec.Cmd, stdout, stderr io.Reader) {
	started := time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	go b.readLines(&wg, stdout, func(line string) {
		b.emit(schema.Output{EventMeta: b.meta(sessionID), Data: line + "\n"})
	})
	go b.readLines(&wg, stderr, func(line string) {
		b.emit(schema.ErrorEvent{EventMeta: b.meta(sessionID), Data: line + "\n"})
	})
	wg.Wait()

	err := cmd.Wait()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}
	b.mu.Lock()
	delete(session.procs, cmd.Process.Pid)
	b.mu.Unlock()

	if err != nil {
		log.Warn("shell command finished", "exit_code", exitCode, "duration_ms", time.Since(started).Milliseconds(), "err", err)
	} else {
		log.Debug("shell command finished", "exit_code", exitCode, "duration_ms", time.Since(started).Milliseconds())
	}
	b.emit(schema.ProcessExit{EventMeta: b.meta(sessionID), Code: exitCode})
}

func (b *ShellBackend) readLines(wg *sync.WaitGroup, reader io.Reader, emit func(string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

func (b *ShellBackend) emit(event schema.TransportEvent) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn("shell event dropped", "type", event.Kind(), "session", event.Session())
	}
}

func (b *ShellBackend) meta(sessionID string) schema.EventMeta {
	return schema.EventMeta{SessionID: schema.SessionID(sessionID), Timestamp: schema.FormatTimestamp(b.cfg.Clock())}
}

func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return errors.New("process not started")
	}
	pid := cmd.Process.Pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid > 0 {
		if err := unix.Kill(-pgid, unix.SIGKILL); err == nil {
			return nil
		}
	}
	return cmd.Process.Kill()
}

func filterEnv(env []string, key string) []string {
	if len(env) == 0 {
		return env
	}
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return out
}
