package wire_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"dball/internal/wire"
)

func mustEnvelope(t *testing.T, kind wire.Kind, msg any) wire.Envelope {
	t.Helper()
	env, err := wire.NewEnvelope(kind, msg)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestEncodeDecodeSmallPayloadIsRaw(t *testing.T) {
	env := mustEnvelope(t, wire.RequestKind(wire.GetCurrentState{}), nil)
	frame, err := wire.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[4] != 0 {
		t.Fatalf("expected raw flag, got %d", frame[4])
	}
	if got := int(binary.BigEndian.Uint32(frame[:4])); got != len(frame)-4 {
		t.Fatalf("length header %d, want %d", got, len(frame)-4)
	}

	decoded, n, ok, err := wire.Decode(frame)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if n != len(frame) {
		t.Fatalf("consumed %d, want %d", n, len(frame))
	}
	if decoded.UUID != env.UUID {
		t.Fatalf("uuid mismatch: %s vs %s", decoded.UUID, env.UUID)
	}
	if decoded.Kind.Type != wire.KindRequest || decoded.Kind.Op.Name() != wire.OpGetCurrentState {
		t.Fatalf("unexpected kind %s", decoded.Kind)
	}
}

func TestEncodeDecodeLargePayloadIsCompressed(t *testing.T) {
	body := strings.Repeat("dball ", 2000)
	env := mustEnvelope(t, wire.EventKind(), map[string]string{"body": body})
	frame, err := wire.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[4] != 1 {
		t.Fatalf("expected gzip flag, got %d", frame[4])
	}
	if len(frame) >= len(body) {
		t.Fatalf("compressed frame not smaller: %d", len(frame))
	}

	decoded, _, ok, err := wire.Decode(frame)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	var msg map[string]string
	if err := decoded.DecodeMsg(&msg); err != nil {
		t.Fatalf("DecodeMsg: %v", err)
	}
	if msg["body"] != body {
		t.Fatalf("payload mismatch after decompression")
	}
}

func TestDecodeNeedsMoreData(t *testing.T) {
	frame, err := wire.Encode(mustEnvelope(t, wire.HelloKind(), wire.ClientHello("test")))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < len(frame); i++ {
		_, _, ok, err := wire.Decode(frame[:i])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error %v", i, err)
		}
		if ok {
			t.Fatalf("prefix %d: decoded an incomplete frame", i)
		}
	}
}

func TestDecodeRejectsZeroLength(t *testing.T) {
	_, _, _, err := wire.Decode([]byte{0, 0, 0, 0, 0})
	if !errors.Is(err, wire.ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecodeRejectsOversizedHeaderBeforeBody(t *testing.T) {
	codec := wire.NewCodec(wire.Limits{MaxFrameBytes: 64})
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 65)
	_, _, _, err := codec.Decode(header)
	if !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeRejectsUnknownFlag(t *testing.T) {
	frame, err := wire.Encode(mustEnvelope(t, wire.ResponseKind(), wire.FailureResponse("x", "nope")))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame[4] = 7
	if _, _, _, err := wire.Decode(frame); !errors.Is(err, wire.ErrUnknownFlag) {
		t.Fatalf("expected ErrUnknownFlag, got %v", err)
	}
}

func TestDecodeRejectsCorruptGzip(t *testing.T) {
	payload := []byte("not gzip at all")
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)+1))
	frame[4] = 1
	copy(frame[5:], payload)
	if _, _, _, err := wire.Decode(frame); !errors.Is(err, wire.ErrDecompress) {
		t.Fatalf("expected ErrDecompress, got %v", err)
	}
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	payload := []byte("{not json")
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)+1))
	copy(frame[5:], payload)
	if _, _, _, err := wire.Decode(frame); !errors.Is(err, wire.ErrPayload) {
		t.Fatalf("expected ErrPayload, got %v", err)
	}
}

func TestEncodeRejectsFrameOverLimit(t *testing.T) {
	codec := wire.NewCodec(wire.Limits{MaxFrameBytes: 32, CompressThreshold: 1 << 20})
	env := mustEnvelope(t, wire.EventKind(), strings.Repeat("x", 100))
	if _, err := codec.Encode(env); !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestFrameBufferByteAtATime(t *testing.T) {
	var stream bytes.Buffer
	var ids []string
	for i := 0; i < 3; i++ {
		env := mustEnvelope(t, wire.EventKind(), map[string]int{"n": i})
		ids = append(ids, env.UUID)
		frame, err := wire.Encode(env)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		stream.Write(frame)
	}

	fb := wire.NewFrameBuffer(wire.DefaultLimits())
	var got []string
	for _, b := range stream.Bytes() {
		fb.Push([]byte{b})
		for {
			env, ok, err := fb.TryDecode()
			if err != nil {
				t.Fatalf("TryDecode: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, env.UUID)
		}
	}
	if len(got) != len(ids) {
		t.Fatalf("decoded %d envelopes, want %d", len(got), len(ids))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("envelope %d out of order", i)
		}
	}
	if fb.Len() != 0 {
		t.Fatalf("expected drained buffer, have %d bytes", fb.Len())
	}
}

func TestFrameBufferKeepsTrailingPartialFrame(t *testing.T) {
	first, err := wire.Encode(mustEnvelope(t, wire.HelloKind(), wire.DaemonHello()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := wire.Encode(mustEnvelope(t, wire.SubscribeKind(), wire.SubscribePayload{}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	fb := wire.NewFrameBuffer(wire.DefaultLimits())
	fb.Push(first)
	fb.Push(second[:3])
	if _, ok, err := fb.TryDecode(); err != nil || !ok {
		t.Fatalf("first TryDecode: ok=%v err=%v", ok, err)
	}
	if fb.Len() != 3 {
		t.Fatalf("expected 3 leftover bytes, got %d", fb.Len())
	}
	if _, ok, err := fb.TryDecode(); err != nil || ok {
		t.Fatalf("partial TryDecode: ok=%v err=%v", ok, err)
	}
	fb.Push(second[3:])
	env, ok, err := fb.TryDecode()
	if err != nil || !ok {
		t.Fatalf("second TryDecode: ok=%v err=%v", ok, err)
	}
	if env.Kind.Type != wire.KindSubscribe {
		t.Fatalf("unexpected kind %s", env.Kind)
	}
	fb.Reset()
	if fb.Len() != 0 {
		t.Fatalf("Reset left %d bytes", fb.Len())
	}
}
