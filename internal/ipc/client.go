package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"dball/internal/logging"
	"dball/internal/state"
	"dball/internal/wire"
)

const (
	defaultRequestTimeout = 24 * time.Hour
	defaultDialTimeout    = 2 * time.Second
	outboundQueueSize     = 64
)

// Options configures a Client.
type Options struct {
	ClientInfo string
	// Subscribe asks for state broadcasts after the handshake.
	Subscribe bool
	// Events narrows the subscription; empty means every event type.
	Events         []wire.EventType
	RequestTimeout time.Duration
	DialTimeout    time.Duration
	Limits         wire.Limits
	Logger         *slog.Logger
}

func (o Options) normalized() Options {
	if o.ClientInfo == "" {
		o.ClientInfo = "dball-cli"
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	o.Logger = logging.NewComponentLogger(o.Logger, "ipc-client")
	return o
}

// connection is the state of one dialed socket. It is replaced wholesale on
// reconnect.
type connection struct {
	conn      net.Conn
	writer    *frameWriter
	out       chan wire.Envelope
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func (c *connection) close(err error) bool {
	closed := false
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.conn.Close()
		closed = true
	})
	return closed
}

// Client is a multiplexed session with the daemon. Requests may be issued
// concurrently; responses are matched by correlation id.
type Client struct {
	path   string
	opts   Options
	codec  *wire.Codec
	logger *slog.Logger

	connMu sync.Mutex // serializes Connect

	mu      sync.Mutex
	current *connection
	status  Status
	pending *pendingMap

	stateMu  sync.Mutex
	snapshot state.AppState
	hasState bool
	version  uint64
	changed  chan struct{}
}

// NewClient prepares a client for the socket at path. It does not dial.
func NewClient(path string, opts Options) *Client {
	opts = opts.normalized()
	return &Client{
		path:    path,
		opts:    opts,
		codec:   wire.NewCodec(opts.Limits),
		logger:  opts.Logger.With(logging.String("socket", path)),
		status:  Status{Kind: StatusDisconnected},
		pending: newPendingMap(),
		changed: make(chan struct{}),
	}
}

// Dial creates a client and connects it.
func Dial(ctx context.Context, path string, opts Options) (*Client, error) {
	c := NewClient(path, opts)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the socket path.
func (c *Client) Path() string {
	return c.path
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connected reports whether the client holds a usable connection.
func (c *Client) Connected() bool {
	return c.Status().Usable()
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Connect dials the daemon, sends Hello, and subscribes when configured. An
// existing connection is torn down first.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if prev := c.swapConnection(nil); prev != nil {
		c.teardown(prev, ErrConnectionClosed)
	}
	c.setStatus(Status{Kind: StatusConnecting})

	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	raw, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		c.setStatus(Status{Kind: StatusError, Reason: err.Error()})
		return fmt.Errorf("dial daemon socket: %w", err)
	}

	cn := &connection{
		conn:   raw,
		writer: newFrameWriter(raw, c.codec),
		out:    make(chan wire.Envelope, outboundQueueSize),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.current = cn
	c.status = Status{Kind: StatusConnected}
	c.mu.Unlock()

	go c.writeLoop(cn)
	go c.readLoop(cn)

	hello, err := wire.NewEnvelope(wire.HelloKind(), wire.ClientHello(c.opts.ClientInfo))
	if err != nil {
		c.teardown(cn, err)
		return err
	}
	if err := c.enqueue(ctx, cn, hello); err != nil {
		c.teardown(cn, err)
		return fmt.Errorf("send hello: %w", err)
	}
	c.setStatusIfCurrent(cn, Status{Kind: StatusAuthenticated})

	if c.opts.Subscribe {
		if err := c.subscribe(ctx, cn); err != nil {
			c.teardown(cn, err)
			return fmt.Errorf("subscribe: %w", err)
		}
		c.setStatusIfCurrent(cn, Status{Kind: StatusSubscribed})
	}
	c.logger.Debug("connected to daemon", logging.Bool("subscribed", c.opts.Subscribe))
	return nil
}

func (c *Client) subscribe(ctx context.Context, cn *connection) error {
	id := wire.NewID()
	slot := c.pending.add(id)
	env, err := wire.NewEnvelopeWithID(wire.SubscribeKind(), wire.SubscribePayload{Events: c.opts.Events}, id)
	if err != nil {
		c.pending.remove(id)
		return err
	}
	resp, err := c.await(ctx, cn, id, env, slot)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RemoteError{Op: "Subscribe", Message: resp.Error}
	}
	var snapshot state.AppState
	if err := resp.DecodeData(&snapshot); err != nil {
		return err
	}
	c.storeState(snapshot)
	return nil
}

// Request sends op and waits for its response.
func (c *Client) Request(ctx context.Context, op wire.Operation) (wire.ResponsePayload, error) {
	c.mu.Lock()
	cn := c.current
	c.mu.Unlock()
	if cn == nil {
		return wire.ResponsePayload{}, ErrNotConnected
	}

	id := wire.NewID()
	slot := c.pending.add(id)
	env, err := wire.NewEnvelopeWithID(wire.RequestKind(op), nil, id)
	if err != nil {
		c.pending.remove(id)
		return wire.ResponsePayload{}, err
	}
	return c.await(ctx, cn, id, env, slot)
}

// Call sends op and decodes successful response data into out, which may be
// nil. A business failure is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, op wire.Operation, out any) error {
	resp, err := c.Request(ctx, op)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RemoteError{Op: op.Name(), Message: resp.Error}
	}
	if out == nil {
		return nil
	}
	return resp.DecodeData(out)
}

func (c *Client) await(ctx context.Context, cn *connection, id string, env wire.Envelope, slot <-chan result) (wire.ResponsePayload, error) {
	if err := c.enqueue(ctx, cn, env); err != nil {
		c.pending.remove(id)
		return wire.ResponsePayload{}, err
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case r := <-slot:
		return r.resp, r.err
	case <-cn.done:
		select {
		case r := <-slot:
			return r.resp, r.err
		default:
		}
		c.pending.remove(id)
		return wire.ResponsePayload{}, ErrConnectionClosed
	case <-timer.C:
		c.pending.remove(id)
		return wire.ResponsePayload{}, fmt.Errorf("%w after %s", ErrRequestTimeout, c.opts.RequestTimeout)
	case <-ctx.Done():
		c.pending.remove(id)
		return wire.ResponsePayload{}, ctx.Err()
	}
}

func (c *Client) enqueue(ctx context.Context, cn *connection, env wire.Envelope) error {
	// A closed done and a free buffer slot are both ready; check done first.
	select {
	case <-cn.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case cn.out <- env:
		return nil
	case <-cn.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) writeLoop(cn *connection) {
	for {
		select {
		case <-cn.done:
			return
		case env := <-cn.out:
			if err := cn.writer.write(env); err != nil {
				c.teardown(cn, err)
				return
			}
		}
	}
}

func (c *Client) readLoop(cn *connection) {
	_, err := readFrames(cn.conn, c.codec.Limits(), func(env wire.Envelope) bool {
		c.route(env)
		return true
	})
	c.teardown(cn, err)
}

func (c *Client) route(env wire.Envelope) {
	switch env.Kind.Type {
	case wire.KindResponse:
		var resp wire.ResponsePayload
		if err := env.DecodeMsg(&resp); err != nil {
			c.logger.Warn("discarding undecodable response", logging.Error(err))
			return
		}
		id := resp.RequestUUID
		if id == "" {
			id = env.UUID
		}
		if !c.pending.resolve(id, result{resp: resp}) {
			c.logger.Debug("dropping response with no waiting request",
				logging.String(logging.FieldCorrelationID, id))
		}
	case wire.KindEvent:
		var snapshot state.AppState
		if err := env.DecodeMsg(&snapshot); err != nil {
			c.logger.Warn("discarding undecodable event", logging.Error(err))
			return
		}
		c.storeState(snapshot)
	case wire.KindHello:
		var hello wire.HelloPayload
		if err := env.DecodeMsg(&hello); err == nil {
			c.logger.Debug("daemon hello",
				logging.String("server_name", hello.ServerName),
				logging.Int("version", int(hello.Version)))
		}
	case wire.KindErr:
		var payload wire.ErrorPayload
		_ = env.DecodeMsg(&payload)
		logging.WarnWithContext(c.logger, "daemon reported protocol error", "ipc_protocol_error",
			logging.Int64("code", int64(payload.Code)),
			logging.String("message", payload.Message),
			logging.String("details", payload.Details),
			logging.String(logging.FieldImpact, "connection will be closed by the daemon"))
	default:
		c.logger.Debug("ignoring unexpected envelope", logging.String("kind", env.Kind.String()))
	}
}

func (c *Client) storeState(snapshot state.AppState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.snapshot = snapshot
	c.hasState = true
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
}

// StateWatch returns the cached snapshot, whether one has arrived, a version
// counter, and a channel closed on the next change.
func (c *Client) StateWatch() (state.AppState, bool, uint64, <-chan struct{}) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.snapshot.Clone(), c.hasState, c.version, c.changed
}

// State returns the cached snapshot.
func (c *Client) State() (state.AppState, bool) {
	s, ok, _, _ := c.StateWatch()
	return s, ok
}

func (c *Client) swapConnection(next *connection) *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.current
	c.current = next
	return prev
}

func (c *Client) setStatusIfCurrent(cn *connection, s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == cn {
		c.status = s
	}
}

// teardown closes cn once, fails its in-flight requests, and updates the
// status when cn is still the active connection.
func (c *Client) teardown(cn *connection, cause error) {
	if !cn.close(cause) {
		return
	}
	failed := c.pending.failAll(ErrConnectionClosed)

	c.mu.Lock()
	if c.current == cn {
		c.current = nil
		if cause == nil || errors.Is(cause, io.EOF) || errors.Is(cause, net.ErrClosed) || errors.Is(cause, ErrConnectionClosed) {
			c.status = Status{Kind: StatusDisconnected}
		} else {
			c.status = Status{Kind: StatusError, Reason: cause.Error()}
		}
	}
	c.mu.Unlock()

	if failed > 0 {
		c.logger.Debug("failed in-flight requests on disconnect", logging.Int("count", failed))
	}
}

// Close drops the connection. Pending requests fail with ErrConnectionClosed.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if cn := c.swapConnection(nil); cn != nil {
		c.teardown(cn, ErrConnectionClosed)
	}
	c.setStatus(Status{Kind: StatusDisconnected})
	return nil
}
