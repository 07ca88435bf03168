// pkg/protocol/message.go
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/framelink/framelink-core/pkg/codec"
)

// Type tags a message envelope. Unknown values are not an error; the host
// dispatcher skips them for forward compatibility.
type Type string

const (
	TypeReady Type = "READY"
	TypeEnd   Type = "END"

	TypeCartListRequest   Type = "CART_LIST_REQUEST"
	TypeCartAddRequest    Type = "CART_ADD_REQUEST"
	TypeCartUpdateRequest Type = "CART_UPDATE_REQUEST"
	TypeCartRemoveRequest Type = "CART_REMOVE_REQUEST"
	TypeCartClearRequest  Type = "CART_CLEAR_REQUEST"
	TypeCartResponse      Type = "CART_RESPONSE"

	TypeCapabilityRequest  Type = "CAPABILITY_REQUEST"
	TypeCapabilityResponse Type = "CAPABILITY_RESPONSE"

	TypeMetadata Type = "METADATA"
)

// Message is the envelope exchanged between host and frame. Request-bearing
// variants carry a caller-generated RequestID; response variants echo it.
// Identifiers are opaque: they are map keys, never sequence numbers.
type Message struct {
	Type         Type            `json:"type"`
	RequestID    string          `json:"requestId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Success      *bool           `json:"success,omitempty"`
	Error        string          `json:"error,omitempty"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	Adapter      string          `json:"adapter,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// CapabilitySet maps a capability name to its resolved availability.
type CapabilitySet map[string]bool

// Outcome is what a request's caller ultimately observes: the normalized
// success/failure shape of exactly one response.
type Outcome struct {
	Success bool
	Data    map[string]any
	Err     string
}

func Encode(m Message) ([]byte, error) {
	return codec.JSONLenient.Marshal(m)
}

// Decode is lenient on the envelope level so newer peers can add fields.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := codec.JSONLenient.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("protocol: envelope missing type")
	}
	return m, nil
}

// EncodeBatch encodes several envelopes as one JSON array, the shape the
// gateway's long-poll endpoint returns.
func EncodeBatch(batch []Message) ([]byte, error) {
	return codec.JSONLenient.Marshal(batch)
}

func NewRequest(t Type, requestID string, data any) (Message, error) {
	m := Message{Type: t, RequestID: requestID}
	if data != nil {
		raw, err := codec.JSONStrict.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("protocol: encode request data: %w", err)
		}
		m.Data = raw
	}
	return m, nil
}

func NewCartResponse(requestID string, success bool, data any, errMsg string) Message {
	m := Message{Type: TypeCartResponse, RequestID: requestID, Success: &success, Error: errMsg}
	if data != nil {
		if raw, err := codec.JSONStrict.Marshal(data); err == nil {
			m.Data = raw
		}
	}
	return m
}

func NewCapabilityRequest(requestID string, names []string, adapterHint string) Message {
	raw, _ := codec.JSONStrict.Marshal(names)
	return Message{
		Type:         TypeCapabilityRequest,
		RequestID:    requestID,
		Capabilities: raw,
		Adapter:      adapterHint,
	}
}

func NewCapabilityResponse(requestID string, set CapabilitySet) Message {
	raw, _ := codec.JSONStrict.Marshal(set)
	return Message{Type: TypeCapabilityResponse, RequestID: requestID, Capabilities: raw}
}

func NewMetadata(meta map[string]any) Message {
	return Message{Type: TypeMetadata, Metadata: meta}
}

// RequestedCapabilities decodes the capability-name list of a
// CAPABILITY_REQUEST. A missing or empty list is valid and yields nil.
func (m Message) RequestedCapabilities() ([]string, error) {
	if len(m.Capabilities) == 0 {
		return nil, nil
	}
	var names []string
	if err := codec.JSONStrict.Unmarshal(m.Capabilities, &names); err != nil {
		return nil, fmt.Errorf("protocol: capability names: %w", err)
	}
	return names, nil
}

// CapabilityResult decodes the availability map of a CAPABILITY_RESPONSE.
func (m Message) CapabilityResult() (CapabilitySet, error) {
	if len(m.Capabilities) == 0 {
		return nil, nil
	}
	var set CapabilitySet
	if err := codec.JSONStrict.Unmarshal(m.Capabilities, &set); err != nil {
		return nil, fmt.Errorf("protocol: capability set: %w", err)
	}
	return set, nil
}

// Outcome converts a response envelope into the caller-facing shape.
func (m Message) Outcome() Outcome {
	out := Outcome{Err: m.Error}
	if m.Success != nil {
		out.Success = *m.Success
	}
	if len(m.Data) > 0 {
		_ = codec.JSONLenient.Unmarshal(m.Data, &out.Data)
	}
	if m.Type == TypeCapabilityResponse && len(m.Capabilities) > 0 {
		out.Success = true
		var set map[string]any
		if err := codec.JSONLenient.Unmarshal(m.Capabilities, &set); err == nil {
			out.Data = set
		}
	}
	return out
}
