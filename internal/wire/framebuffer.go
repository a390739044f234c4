package wire

// FrameBuffer accumulates bytes read from a stream and yields whole
// envelopes. It is not safe for concurrent use.
type FrameBuffer struct {
	codec *Codec
	buf   []byte
}

// NewFrameBuffer returns an empty buffer decoding with limits.
func NewFrameBuffer(limits Limits) *FrameBuffer {
	return &FrameBuffer{codec: NewCodec(limits)}
}

// Push appends raw bytes.
func (b *FrameBuffer) Push(p []byte) {
	b.buf = append(b.buf, p...)
}

// TryDecode removes and returns the first complete envelope. It returns
// ok=false when more bytes are needed. After an error the buffer contents are
// undefined and the stream should be abandoned.
func (b *FrameBuffer) TryDecode() (Envelope, bool, error) {
	env, n, ok, err := b.codec.Decode(b.buf)
	if err != nil || !ok {
		return Envelope{}, false, err
	}
	remaining := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:remaining]
	return env, true, nil
}

// Len reports the number of buffered, undecoded bytes.
func (b *FrameBuffer) Len() int {
	return len(b.buf)
}

// Reset discards buffered bytes.
func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
}
