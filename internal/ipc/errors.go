package ipc

import (
	"errors"
	"fmt"

	"dball/internal/wire"
)

var (
	// ErrRequestTimeout is returned when no response arrives within the
	// request timeout. The daemon may still complete the work.
	ErrRequestTimeout = errors.New("ipc: request timed out")
	// ErrConnectionClosed fails requests whose connection went away.
	ErrConnectionClosed = errors.New("ipc: connection closed")
	// ErrNotConnected is returned by Request before Connect succeeds.
	ErrNotConnected = errors.New("ipc: not connected")
	// ErrNotImplemented lets a Handler report an operation it does not serve.
	ErrNotImplemented = errors.New("not implemented")
)

// RemoteError is a business failure reported by the daemon.
type RemoteError struct {
	Op      wire.OpName
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func notImplementedMessage(name wire.OpName) string {
	return fmt.Sprintf("operation %s not implemented", name)
}
