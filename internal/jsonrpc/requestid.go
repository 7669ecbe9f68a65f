package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC message id: a string, a number, or the JSON null
// literal. The adapter never allocates ids of its own; it only needs to
// preserve whatever the peer sent and to tell "id present" apart from "id
// absent", because any present id (null included) classifies a message as a
// request rather than a notification.
type RequestID struct {
	raw json.RawMessage
}

// String renders the id for log output. Null ids render as "null".
func (id *RequestID) String() string {
	if id == nil || len(id.raw) == 0 {
		return ""
	}
	if id.IsNull() {
		return "null"
	}
	var s string
	if err := json.Unmarshal(id.raw, &s); err == nil {
		return s
	}
	return string(id.raw)
}

// IsNull reports whether the id is the JSON null literal.
func (id *RequestID) IsNull() bool {
	return id != nil && bytes.Equal(id.raw, []byte("null"))
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only strings, numbers and null
// are admitted; objects and arrays are not legal ids.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty JSON-RPC id")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
	case 'n':
		if !bytes.Equal(trimmed, []byte("null")) {
			return fmt.Errorf("invalid JSON-RPC id: %s", trimmed)
		}
	case '{', '[', 't', 'f':
		return fmt.Errorf("JSON-RPC id must be a string, number, or null, got: %s", trimmed)
	default:
		var num float64
		if err := json.Unmarshal(trimmed, &num); err != nil {
			return fmt.Errorf("JSON-RPC id must be a string, number, or null, got: %s", trimmed)
		}
	}
	id.raw = append(id.raw[:0], trimmed...)
	return nil
}
