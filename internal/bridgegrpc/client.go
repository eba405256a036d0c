package bridgegrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pkt.systems/pslog"
	"pkt.systems/termlink/core"
)

// Client implements livetransport.Bridge over gRPC on a Unix domain socket.
type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   *grpc.ClientConn
	cancel context.CancelFunc
	events chan []byte
	errs   chan string
	done   chan struct{}
}

// NewClient constructs a disconnected bridge client. The socket path is
// supplied on Connect.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Dial creates a connection over a Unix domain socket without pinging it.
func Dial(ctx context.Context, socketPath string) (*grpc.ClientConn, error) {
	if socketPath == "" {
		return nil, errors.New("bridge socket path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", addr)
	}
	return grpc.NewClient(
		"passthrough:///"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
}

// Connect dials socketPath, verifies the bridge answers and subscribes to
// its event stream.
func (c *Client) Connect(ctx context.Context, socketPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	log := pslog.Ctx(ctx).With("socket", socketPath)
	conn, err := Dial(ctx, socketPath)
	if err != nil {
		log.Warn("bridge grpc dial failed", "err", err)
		return wrapTransportError("connect", err)
	}
	if _, err := invokePing(ctx, conn); err != nil {
		logGRPCError(log, "bridge grpc ping failed", err)
		_ = conn.Close()
		return wrapTransportError("connect", err)
	}

	streamCtx, cancel := context.WithCancel(pslog.ContextWithLogger(context.Background(), log))
	stream, err := conn.NewStream(streamCtx, &bridgeServiceDesc.Streams[0], methodEvents)
	if err == nil {
		err = stream.SendMsg(&emptypb.Empty{})
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err == nil {
		_, err = stream.Header()
	}
	if err != nil {
		cancel()
		_ = conn.Close()
		logGRPCError(log, "bridge grpc subscribe failed", err)
		return wrapTransportError("subscribe", err)
	}

	c.conn = conn
	c.cancel = cancel
	c.events = make(chan []byte, 256)
	c.errs = make(chan string, 16)
	c.done = make(chan struct{})
	go c.consume(streamCtx, stream, c.events, c.errs, c.done)
	if c.cfg.KeepaliveInterval > 0 {
		go c.keepalive(streamCtx, conn, c.cfg.KeepaliveInterval)
	}
	log.Info("bridge grpc connected")
	return nil
}

// Send forwards a raw message to the bridge.
func (c *Client) Send(ctx context.Context, message string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	if err := conn.Invoke(ctx, methodSend, wrapperspb.String(message), &emptypb.Empty{}); err != nil {
		logGRPCError(pslog.Ctx(ctx), "bridge grpc send failed", err)
		return wrapTransportError("send", err)
	}
	return nil
}

// StartSession asks the bridge to allocate a session.
func (c *Client) StartSession(ctx context.Context, sessionID, credential, workingDir string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	req := newStruct(map[string]string{
		fieldSessionID:  sessionID,
		fieldCredential: credential,
		fieldWorkingDir: workingDir,
	})
	pslog.Ctx(ctx).Debug("bridge grpc session start", "session", sessionID, "workdir", workingDir)
	if err := conn.Invoke(ctx, methodStartSession, req, &emptypb.Empty{}); err != nil {
		logGRPCError(pslog.Ctx(ctx), "bridge grpc session start failed", err)
		return wrapTransportError("start_session", err)
	}
	return nil
}

// SendInput forwards one line to a session.
func (c *Client) SendInput(ctx context.Context, sessionID, input string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	req := newStruct(map[string]string{fieldSessionID: sessionID, fieldInput: input})
	if err := conn.Invoke(ctx, methodSendInput, req, &emptypb.Empty{}); err != nil {
		logGRPCError(pslog.Ctx(ctx), "bridge grpc input failed", err)
		return wrapTransportError("send_input", err)
	}
	return nil
}

// StopSession ends a session on the bridge.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	req := newStruct(map[string]string{fieldSessionID: sessionID})
	if err := conn.Invoke(ctx, methodStop, req, &emptypb.Empty{}); err != nil {
		logGRPCError(pslog.Ctx(ctx), "bridge grpc stop failed", err)
		return wrapTransportError("stop_session", err)
	}
	return nil
}

// Ping sends a keepalive ping to the bridge.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	if _, err := invokePing(ctx, conn); err != nil {
		return wrapTransportError("ping", err)
	}
	return nil
}

// Disconnect cancels the event stream and closes the connection. It is safe
// to call when never connected.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if err != nil {
		return wrapTransportError("disconnect", err)
	}
	pslog.Ctx(ctx).Info("bridge grpc disconnected")
	return nil
}

// Events yields serialized event frames from the current connection.
func (c *Client) Events() <-chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Errors yields stream failures from the current connection.
func (c *Client) Errors() <-chan string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}

func (c *Client) current() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, core.NewTransportError(core.TransportErrorNotConnected, "bridge", errors.New("bridge client not connected"))
	}
	return c.conn, nil
}

func (c *Client) consume(ctx context.Context, stream grpc.ClientStream, events chan<- []byte, errs chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(errs)
	defer close(events)
	log := pslog.Ctx(ctx)
	for {
		frame := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(frame)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("bridge grpc event stream closed")
				return
			}
			text := err.Error()
			if errors.Is(err, io.EOF) {
				text = "bridge closed the event stream"
			}
			logGRPCError(log, "bridge grpc event stream failed", err)
			select {
			case errs <- text:
			default:
			}
			return
		}
		log.Trace("bridge grpc event", "len", len(frame.GetValue()))
		select {
		case events <- frame.GetValue():
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) keepalive(ctx context.Context, conn *grpc.ClientConn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			_, err := invokePing(pingCtx, conn)
			cancel()
			if err != nil && ctx.Err() == nil {
				logGRPCError(pslog.Ctx(ctx), "bridge grpc keepalive failed", err)
			}
		}
	}
}

func invokePing(ctx context.Context, conn *grpc.ClientConn) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := conn.Invoke(ctx, methodPing, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}

func wrapTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *core.TransportError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return core.NewTransportError(core.TransportErrorCanceled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTransportError(core.TransportErrorTimeout, op, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable:
			return core.NewTransportError(core.TransportErrorUnavailable, op, err)
		case codes.DeadlineExceeded:
			return core.NewTransportError(core.TransportErrorTimeout, op, err)
		case codes.Canceled:
			return core.NewTransportError(core.TransportErrorCanceled, op, err)
		case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.AlreadyExists:
			return core.NewTransportError(core.TransportErrorRejected, op, err)
		default:
			return core.NewTransportError(core.TransportErrorUnknown, op, err)
		}
	}
	return core.NewTransportError(core.TransportErrorUnknown, op, err)
}
