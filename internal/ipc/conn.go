package ipc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"dball/internal/wire"
)

const (
	readBufferSize = 32 * 1024
	writeTimeout   = 10 * time.Second
)

// frameWriter serializes envelope writes so frames never interleave.
type frameWriter struct {
	mu    sync.Mutex
	conn  net.Conn
	codec *wire.Codec
}

func newFrameWriter(conn net.Conn, codec *wire.Codec) *frameWriter {
	return &frameWriter{conn: conn, codec: codec}
}

func (w *frameWriter) write(env wire.Envelope) error {
	frame, err := w.codec.Encode(env)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := w.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrames reads from conn until it fails, passing every decoded envelope to
// handle in order, stopping early when handle returns false. It returns the
// error that ended the loop; decodeFailed marks errors from the frame decoder.
func readFrames(conn net.Conn, limits wire.Limits, handle func(wire.Envelope) bool) (decodeFailed bool, err error) {
	fb := wire.NewFrameBuffer(limits)
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			fb.Push(buf[:n])
			for {
				env, ok, err := fb.TryDecode()
				if err != nil {
					return true, err
				}
				if !ok {
					break
				}
				if !handle(env) {
					return false, nil
				}
			}
		}
		if readErr != nil {
			return false, readErr
		}
	}
}
