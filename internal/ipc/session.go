package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"dball/internal/logging"
	"dball/internal/state"
	"dball/internal/wire"
)

// session serves one client connection.
type session struct {
	srv    *Server
	id     uint64
	conn   net.Conn
	writer *frameWriter
	logger *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	pumpOnce  sync.Once
	pumpDone  chan struct{}
}

func newSession(srv *Server, id uint64, conn net.Conn) *session {
	ctx, cancel := context.WithCancel(srv.ctx)
	return &session{
		srv:      srv,
		id:       id,
		conn:     conn,
		writer:   newFrameWriter(conn, srv.codec),
		logger:   srv.logger.With(logging.String(logging.FieldConnID, strconv.FormatUint(id, 10))),
		ctx:      ctx,
		cancel:   cancel,
		pumpDone: make(chan struct{}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}

func (s *session) run() {
	s.logger.Debug("client connected")
	defer func() {
		s.close()
		s.pumpOnce.Do(func() { close(s.pumpDone) })
		<-s.pumpDone
		s.logger.Debug("client disconnected")
	}()

	decodeFailed, err := readFrames(s.conn, s.srv.codec.Limits(), s.handle)
	switch {
	case decodeFailed:
		s.srv.metrics.DecodeError()
		s.logger.Warn("closing connection after undecodable frame",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_decode_failed"),
			logging.String(logging.FieldImpact, "client connection dropped"),
			logging.String(logging.FieldErrorHint, "check that the client speaks the same protocol version"))
		s.sendError(wire.ErrCodeBadFrame, "malformed frame", err.Error())
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), s.ctx.Err() != nil:
	default:
		s.logger.Debug("connection read failed", logging.Error(err))
	}
}

// handle processes one inbound envelope. It returns false to end the session.
func (s *session) handle(env wire.Envelope) bool {
	switch env.Kind.Type {
	case wire.KindHello:
		var hello wire.HelloPayload
		if err := env.DecodeMsg(&hello); err == nil {
			s.logger.Debug("client hello",
				logging.String("client_info", hello.ClientInfo),
				logging.Int("version", int(hello.Version)))
		}
		return s.send(wire.HelloKind(), wire.DaemonHello(), env.UUID)
	case wire.KindSubscribe:
		return s.handleSubscribe(env)
	case wire.KindRequest:
		return s.send(wire.ResponseKind(), s.dispatch(env), env.UUID)
	default:
		s.logger.Debug("ignoring unexpected envelope", logging.String("kind", env.Kind.String()))
		return true
	}
}

func (s *session) handleSubscribe(env wire.Envelope) bool {
	var sub wire.SubscribePayload
	if len(env.Msg) > 0 && string(env.Msg) != "null" {
		if err := env.DecodeMsg(&sub); err != nil {
			return s.send(wire.ResponseKind(), wire.FailureResponse(env.UUID, err.Error()), env.UUID)
		}
	}

	// Subscribe to the hub before taking the snapshot so no change can fall
	// between the two.
	var hubSub *state.Subscription
	hub := s.srv.holder.Hub()
	if hub != nil && sub.Wants(wire.EventAppStateChange) {
		hubSub = hub.Subscribe()
	}

	resp, err := wire.SuccessResponse(env.UUID, s.srv.holder.Snapshot())
	if err != nil {
		resp = wire.FailureResponse(env.UUID, err.Error())
	}
	if !s.send(wire.ResponseKind(), resp, env.UUID) {
		return false
	}
	if hubSub != nil {
		s.pumpOnce.Do(func() {
			s.logger.Debug("client subscribed", logging.Int("event_types", len(sub.Events)))
			go s.pump(hubSub)
		})
	}
	return true
}

func (s *session) pump(sub *state.Subscription) {
	defer close(s.pumpDone)
	for {
		snapshot, skipped, err := sub.Next(s.ctx)
		if err != nil {
			return
		}
		if skipped > 0 {
			s.srv.metrics.BroadcastSkipped(skipped)
			logging.WarnWithContext(s.logger, "subscriber lagged behind state broadcast", "ipc_broadcast_lag",
				logging.Uint64("skipped", skipped),
				logging.String(logging.FieldImpact, "client missed intermediate snapshots"),
				logging.String(logging.FieldErrorHint, "the client will catch up from the next snapshot"))
		}
		if !s.send(wire.EventKind(), snapshot, wire.NewID()) {
			return
		}
		s.srv.metrics.EventSent()
	}
}

func (s *session) dispatch(env wire.Envelope) (resp wire.ResponsePayload) {
	op := env.Kind.Op
	name := op.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(s.logger, "operation panicked", "ipc_dispatch_panic",
				logging.String(logging.FieldOperation, string(name)),
				logging.String(logging.FieldCorrelationID, env.UUID),
				logging.Any("panic", r))
			resp = wire.FailureResponse(env.UUID, fmt.Sprintf("operation %s failed: internal error", name))
		}
		s.srv.metrics.RequestHandled(string(name), resp.Success, time.Since(start))
	}()

	if _, unknown := op.(wire.UnknownOperation); unknown {
		return wire.FailureResponse(env.UUID, notImplementedMessage(name))
	}

	ctx := logging.WithCorrelationID(s.ctx, env.UUID)
	logger := logging.WithContext(ctx, s.logger).With(logging.String(logging.FieldOperation, string(name)))
	logger.Debug("dispatching request")

	data, err := s.srv.handler.Dispatch(ctx, op)
	if err != nil {
		if errors.Is(err, ErrNotImplemented) {
			return wire.FailureResponse(env.UUID, notImplementedMessage(name))
		}
		logger.Info("request failed", logging.Error(err), logging.Duration("elapsed", time.Since(start)))
		return wire.FailureResponse(env.UUID, err.Error())
	}
	out, err := wire.SuccessResponse(env.UUID, data)
	if err != nil {
		return wire.FailureResponse(env.UUID, err.Error())
	}
	logger.Debug("request completed", logging.Duration("elapsed", time.Since(start)))
	return out
}

// send writes one envelope. A failed write ends the session.
func (s *session) send(kind wire.Kind, msg any, id string) bool {
	env, err := wire.NewEnvelopeWithID(kind, msg, id)
	if err == nil {
		err = s.writer.write(env)
	}
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Info("write to client failed, closing session",
				logging.Error(err),
				logging.String("kind", kind.String()))
		}
		s.close()
		return false
	}
	return true
}

func (s *session) sendError(code uint32, message, details string) {
	env, err := wire.NewEnvelope(wire.ErrKind(), wire.ErrorPayload{Code: code, Message: message, Details: details})
	if err != nil {
		return
	}
	_ = s.writer.write(env)
}
