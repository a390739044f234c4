package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"dball/internal/logging"
	"dball/internal/metrics"
	"dball/internal/state"
	"dball/internal/wire"
)

const acceptRetryDelay = 100 * time.Millisecond

// Handler executes remote operations. The returned value is serialized into
// the response data; an error becomes a business failure string.
type Handler interface {
	Dispatch(ctx context.Context, op wire.Operation) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, op wire.Operation) (any, error)

func (f HandlerFunc) Dispatch(ctx context.Context, op wire.Operation) (any, error) {
	return f(ctx, op)
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithMetrics records connection and request metrics on m.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLimits overrides the frame codec limits.
func WithLimits(l wire.Limits) ServerOption {
	return func(s *Server) { s.codec = wire.NewCodec(l) }
}

// Server accepts daemon clients on a Unix domain socket.
type Server struct {
	path     string
	handler  Handler
	holder   *state.Holder
	logger   *slog.Logger
	listener net.Listener
	codec    *wire.Codec
	metrics  *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu       sync.Mutex
	sessions map[uint64]*session
	nextID   atomic.Uint64
}

// NewServer removes any stale socket at path and listens on a fresh one.
func NewServer(ctx context.Context, path string, handler Handler, holder *state.Holder, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if handler == nil {
		return nil, errors.New("ipc server requires a handler")
	}
	if holder == nil {
		return nil, errors.New("ipc server requires a state holder")
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		path:     path,
		handler:  handler,
		holder:   holder,
		logger:   logging.NewComponentLogger(logger, "ipc"),
		listener: listener,
		codec:    wire.NewCodec(wire.DefaultLimits()),
		ctx:      serverCtx,
		cancel:   cancel,
		sessions: make(map[uint64]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting connections until Close or context cancellation.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				select {
				case <-s.ctx.Done():
					return
				case <-time.After(acceptRetryDelay):
				}
				continue
			}
			s.startSession(conn)
		}
	}()
	go func() {
		<-s.ctx.Done()
		s.Close()
	}()
}

func (s *Server) startSession(conn net.Conn) {
	id := s.nextID.Add(1)
	sess := newSession(s, id, conn)

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.ConnectionOpened()
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
			s.metrics.ConnectionClosed()
		}()
		sess.run()
	}()
}

// Sessions reports the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops accepting, ends every session, and removes the socket file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Lock()
		for _, sess := range s.sessions {
			sess.close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		if err := os.RemoveAll(s.path); err != nil {
			s.logger.Warn("failed to remove socket",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
				logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
				logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun dball stop"))
		}
	})
}
