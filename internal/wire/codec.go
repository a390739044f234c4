package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	headerLen = 4
	flagLen   = 1

	flagRaw  byte = 0
	flagGzip byte = 1
)

const (
	// DefaultCompressThreshold is the JSON size above which payloads are
	// compressed.
	DefaultCompressThreshold = 1024
	// DefaultMaxFrameBytes bounds the declared length of a single frame.
	DefaultMaxFrameBytes = 8 << 20
)

var (
	ErrMalformedFrame = errors.New("wire: malformed frame")
	ErrFrameTooLarge  = errors.New("wire: frame exceeds size limit")
	ErrUnknownFlag    = errors.New("wire: unknown compression flag")
	ErrDecompress     = errors.New("wire: decompression failed")
	ErrPayload        = errors.New("wire: invalid payload")
)

// Limits tunes the codec.
type Limits struct {
	MaxFrameBytes     int
	CompressThreshold int
}

// DefaultLimits returns the limits used by Encode and Decode.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes:     DefaultMaxFrameBytes,
		CompressThreshold: DefaultCompressThreshold,
	}
}

func (l Limits) normalized() Limits {
	if l.MaxFrameBytes <= 0 {
		l.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if l.CompressThreshold <= 0 {
		l.CompressThreshold = DefaultCompressThreshold
	}
	return l
}

// Codec converts envelopes to and from length-prefixed frames.
type Codec struct {
	limits Limits
}

// NewCodec returns a codec using limits, with zero fields replaced by defaults.
func NewCodec(limits Limits) *Codec {
	return &Codec{limits: limits.normalized()}
}

// Limits reports the effective limits.
func (c *Codec) Limits() Limits {
	return c.limits
}

var defaultCodec = NewCodec(DefaultLimits())

// Encode frames env with the default limits.
func Encode(env Envelope) ([]byte, error) {
	return defaultCodec.Encode(env)
}

// Decode parses one frame from the front of buf with the default limits.
func Decode(buf []byte) (Envelope, int, bool, error) {
	return defaultCodec.Decode(buf)
}

// Encode serializes env and frames it, compressing when the JSON exceeds the
// threshold.
func (c *Codec) Encode(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	flag := flagRaw
	if len(payload) > c.limits.CompressThreshold {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, fmt.Errorf("compress envelope: %w", err)
		}
		payload = compressed
		flag = flagGzip
	}

	length := len(payload) + flagLen
	if length > c.limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	out := make([]byte, headerLen+length)
	binary.BigEndian.PutUint32(out[:headerLen], uint32(length))
	out[headerLen] = flag
	copy(out[headerLen+flagLen:], payload)
	return out, nil
}

// Decode parses one frame from the front of buf. It returns ok=false with a
// nil error when buf does not yet hold a complete frame. On success n is the
// number of bytes the frame occupied.
func (c *Codec) Decode(buf []byte) (env Envelope, n int, ok bool, err error) {
	if len(buf) < headerLen {
		return Envelope{}, 0, false, nil
	}
	length := int(binary.BigEndian.Uint32(buf[:headerLen]))
	if length == 0 {
		return Envelope{}, 0, false, fmt.Errorf("%w: zero length", ErrMalformedFrame)
	}
	if length > c.limits.MaxFrameBytes {
		return Envelope{}, 0, false, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, length, c.limits.MaxFrameBytes)
	}
	total := headerLen + length
	if len(buf) < total {
		return Envelope{}, 0, false, nil
	}

	flag := buf[headerLen]
	payload := buf[headerLen+flagLen : total]
	switch flag {
	case flagRaw:
	case flagGzip:
		payload, err = gunzipBytes(payload, c.limits.MaxFrameBytes)
		if err != nil {
			return Envelope{}, 0, false, err
		}
	default:
		return Envelope{}, 0, false, fmt.Errorf("%w: %d", ErrUnknownFlag, flag)
	}

	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, 0, false, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return env, total, true, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte, limit int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: inflated payload exceeds %d bytes", ErrFrameTooLarge, limit)
	}
	return out, nil
}
