package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is stamped into every envelope this package creates.
const ProtocolVersion uint16 = 1

// ErrUnknownKind reports an envelope kind outside the closed set.
var ErrUnknownKind = errors.New("wire: unknown envelope kind")

// KindType names an envelope kind.
type KindType string

const (
	KindHello     KindType = "Hello"
	KindSubscribe KindType = "Subscribe"
	KindRequest   KindType = "Request"
	KindResponse  KindType = "Response"
	KindEvent     KindType = "Event"
	KindErr       KindType = "Err"
)

// Kind is the tagged envelope variant. Op is set only for KindRequest.
type Kind struct {
	Type KindType
	Op   Operation
}

// HelloKind returns the handshake kind.
func HelloKind() Kind { return Kind{Type: KindHello} }

// SubscribeKind returns the subscription kind.
func SubscribeKind() Kind { return Kind{Type: KindSubscribe} }

// ResponseKind returns the response kind.
func ResponseKind() Kind { return Kind{Type: KindResponse} }

// EventKind returns the broadcast event kind.
func EventKind() Kind { return Kind{Type: KindEvent} }

// ErrKind returns the protocol error kind.
func ErrKind() Kind { return Kind{Type: KindErr} }

// RequestKind wraps op in a request kind.
func RequestKind(op Operation) Kind { return Kind{Type: KindRequest, Op: op} }

func (k Kind) String() string {
	if k.Type == KindRequest && k.Op != nil {
		return fmt.Sprintf("Request(%s)", k.Op.Name())
	}
	return string(k.Type)
}

// MarshalJSON encodes unit kinds as bare strings and requests as
// {"Request": <operation>}.
func (k Kind) MarshalJSON() ([]byte, error) {
	switch k.Type {
	case KindHello, KindSubscribe, KindResponse, KindEvent, KindErr:
		return json.Marshal(string(k.Type))
	case KindRequest:
		if k.Op == nil {
			return nil, fmt.Errorf("%w: request without operation", ErrUnknownKind)
		}
		op, err := MarshalOperation(k.Op)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{string(KindRequest): op})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k.Type)
	}
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch KindType(name) {
		case KindHello, KindSubscribe, KindResponse, KindEvent, KindErr:
			*k = Kind{Type: KindType(name)}
			return nil
		}
		return fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownKind, err)
	}
	raw, ok := obj[string(KindRequest)]
	if !ok || len(obj) != 1 {
		return fmt.Errorf("%w: %s", ErrUnknownKind, string(data))
	}
	op, err := UnmarshalOperation(raw)
	if err != nil {
		return err
	}
	*k = Kind{Type: KindRequest, Op: op}
	return nil
}

// Envelope is the uniform message wrapper exchanged by daemon and clients.
type Envelope struct {
	Proto     uint16          `json:"proto"`
	UUID      string          `json:"uuid"`
	Kind      Kind            `json:"kind"`
	Msg       json.RawMessage `json:"msg"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewID mints a correlation id.
func NewID() string {
	return uuid.NewString()
}

// NewEnvelope builds an envelope with a fresh correlation id.
func NewEnvelope(kind Kind, msg any) (Envelope, error) {
	return NewEnvelopeWithID(kind, msg, NewID())
}

// NewEnvelopeWithID builds an envelope that reuses id, typically to echo a
// request's correlation id in its reply.
func NewEnvelopeWithID(kind Kind, msg any, id string) (Envelope, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{
		Proto:     ProtocolVersion,
		UUID:      id,
		Kind:      kind,
		Msg:       raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// DecodeMsg unmarshals the payload into v.
func (e Envelope) DecodeMsg(v any) error {
	if len(e.Msg) == 0 {
		return fmt.Errorf("decode %s payload: empty message", e.Kind)
	}
	if err := json.Unmarshal(e.Msg, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}
