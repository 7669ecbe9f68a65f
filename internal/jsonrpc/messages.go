package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the supported JSON-RPC protocol version.
const Version = "2.0"

// MessageType classifies a validated envelope.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeNotification MessageType = "notification"
	TypeResponse     MessageType = "response"
)

// Error is a JSON-RPC error object as carried inside a response envelope.
// The adapter never constructs these; it only recognizes them while
// classifying child output.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AnyMessage is a single JSON-RPC message of any shape. Unmarshaling
// enforces the 2.0 envelope rules: the version literal must be "2.0" and the
// message must be exactly one of request (method + id), notification (method,
// no id), or response (id + exactly one of result/error).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler with envelope validation.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	// The id is captured raw: a *RequestID field would be silently nilled on
	// a JSON null, and "id": null must still read as id-present.
	type rawMessage struct {
		JSONRPCVersion *string         `json:"jsonrpc"`
		Method         *string         `json:"method"`
		Params         json.RawMessage `json:"params"`
		Result         json.RawMessage `json:"result"`
		Error          *Error          `json:"error"`
		ID             json.RawMessage `json:"id"`
	}

	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	if raw.JSONRPCVersion == nil || *raw.JSONRPCVersion != Version {
		return ErrBadVersion
	}

	var id *RequestID
	if len(raw.ID) > 0 {
		id = &RequestID{}
		if err := id.UnmarshalJSON(raw.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
		}
	}

	hasMethod := raw.Method != nil && *raw.Method != ""
	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	switch {
	case hasMethod:
		// Request or notification. Result/error fields are not legal here.
		if hasResult || hasError {
			return fmt.Errorf("%w: method combined with result or error", ErrBadEnvelope)
		}
	case id != nil:
		// Response: exactly one of result/error.
		if hasResult == hasError {
			return fmt.Errorf("%w: response requires exactly one of result or error", ErrBadEnvelope)
		}
	default:
		return fmt.Errorf("%w: missing method and id", ErrBadEnvelope)
	}

	m.JSONRPCVersion = *raw.JSONRPCVersion
	if raw.Method != nil {
		m.Method = *raw.Method
	}
	m.Params = raw.Params
	m.Result = raw.Result
	m.Error = raw.Error
	m.ID = id
	return nil
}

// Type reports the classification of the message. Any present id, null
// included, makes a method-bearing message a request.
func (m *AnyMessage) Type() MessageType {
	if m.Method != "" {
		if m.ID == nil {
			return TypeNotification
		}
		return TypeRequest
	}
	return TypeResponse
}

// ValidateFrame checks that raw is a single envelope-valid message or a
// non-empty batch of them, as emitted by the child or posted at ingress.
func ValidateFrame(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ErrNotJSON
	}
	switch trimmed[0] {
	case '{':
		var msg AnyMessage
		return json.Unmarshal(trimmed, &msg)
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return fmt.Errorf("%w: %v", ErrNotJSON, err)
		}
		if len(elems) == 0 {
			return ErrEmptyBatch
		}
		for i, elem := range elems {
			var msg AnyMessage
			if err := json.Unmarshal(elem, &msg); err != nil {
				return fmt.Errorf("batch element %d: %w", i, err)
			}
		}
		return nil
	default:
		return ErrBadTopLevel
	}
}

// Canonical re-serializes a validated frame to compact single-line JSON.
func Canonical(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return buf.Bytes(), nil
}

// NormalizeBody splits an ingress body into individual compact messages: a
// single object becomes a one-element list, an array contributes one entry
// per element in submission order. Validation is all-or-nothing: one bad
// batch element rejects the whole body.
func NormalizeBody(raw []byte) ([][]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrNotJSON
	}
	switch trimmed[0] {
	case '{':
		var msg AnyMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, err
		}
		compact, err := Canonical(trimmed)
		if err != nil {
			return nil, err
		}
		return [][]byte{compact}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
		}
		if len(elems) == 0 {
			return nil, ErrEmptyBatch
		}
		out := make([][]byte, 0, len(elems))
		for i, elem := range elems {
			var msg AnyMessage
			if err := json.Unmarshal(elem, &msg); err != nil {
				return nil, fmt.Errorf("batch element %d: %w", i, err)
			}
			compact, err := Canonical(elem)
			if err != nil {
				return nil, fmt.Errorf("batch element %d: %w", i, err)
			}
			out = append(out, compact)
		}
		return out, nil
	default:
		return nil, ErrBadTopLevel
	}
}
