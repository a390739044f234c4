package wire

import (
	"encoding/json"
	"fmt"
)

// ServerName identifies the daemon in handshake replies.
const ServerName = "dball-daemon"

const (
	FeatureBasicRPC          = "basic_rpc"
	FeatureStateSubscription = "state_subscription"
	FeatureCompression       = "compression"
)

// Err envelope codes.
const (
	ErrCodeBadFrame uint32 = 400
	ErrCodeInternal uint32 = 500
)

// HelloPayload is exchanged in both directions during the handshake.
type HelloPayload struct {
	Version           uint16   `json:"version"`
	ClientInfo        string   `json:"client_info,omitempty"`
	ServerName        string   `json:"server_name,omitempty"`
	SupportedFeatures []string `json:"supported_features"`
}

// DaemonHello is the fixed handshake the daemon replies with.
func DaemonHello() HelloPayload {
	return HelloPayload{
		Version:           ProtocolVersion,
		ServerName:        ServerName,
		SupportedFeatures: []string{FeatureBasicRPC, FeatureStateSubscription, FeatureCompression},
	}
}

// ClientHello is the handshake a client opens with.
func ClientHello(clientInfo string) HelloPayload {
	return HelloPayload{
		Version:           ProtocolVersion,
		ClientInfo:        clientInfo,
		SupportedFeatures: []string{FeatureBasicRPC, FeatureStateSubscription},
	}
}

// EventType names a class of broadcast event a client can subscribe to.
type EventType string

const (
	EventAppStateChange EventType = "AppStateChange"
	EventRecordUpdate   EventType = "RecordUpdate"
	EventEntryUpdate    EventType = "EntryUpdate"
	EventSystemHealth   EventType = "SystemHealth"
	EventAPIStatus      EventType = "ApiStatus"
)

// SubscribePayload selects the events a client wants. An empty Events list
// subscribes to everything.
type SubscribePayload struct {
	Events []EventType `json:"events"`
	Filter string      `json:"filter,omitempty"`
}

// Wants reports whether the subscription covers ev.
func (p SubscribePayload) Wants(ev EventType) bool {
	if len(p.Events) == 0 {
		return true
	}
	for _, candidate := range p.Events {
		if candidate == ev {
			return true
		}
	}
	return false
}

// ResponsePayload answers a Request or Subscribe. A business failure is
// reported with Success=false and Error set; the envelope itself is still a
// well-formed Response.
type ResponsePayload struct {
	RequestUUID string          `json:"request_uuid"`
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SuccessResponse marshals data into a successful response.
func SuccessResponse(requestUUID string, data any) (ResponsePayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return ResponsePayload{}, fmt.Errorf("encode response data: %w", err)
	}
	return ResponsePayload{RequestUUID: requestUUID, Success: true, Data: raw}, nil
}

// FailureResponse builds a business-failure response.
func FailureResponse(requestUUID, message string) ResponsePayload {
	return ResponsePayload{RequestUUID: requestUUID, Success: false, Error: message}
}

// DecodeData unmarshals the response data into v.
func (p ResponsePayload) DecodeData(v any) error {
	if len(p.Data) == 0 {
		return fmt.Errorf("response %s carries no data", p.RequestUUID)
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// ErrorPayload is the body of an Err envelope.
type ErrorPayload struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
