package jsonrpc

import "errors"

// Envelope validation failures. The bridge never fabricates JSON-RPC error
// responses; these sentinels surface at the HTTP ingress (as 400s) and in the
// router (as logged skips).
var (
	// ErrNotJSON indicates the payload is not syntactically valid JSON.
	ErrNotJSON = errors.New("payload is not valid JSON")
	// ErrBadTopLevel indicates the payload is neither an object nor an array.
	ErrBadTopLevel = errors.New("payload must be a JSON object or array")
	// ErrEmptyBatch indicates an array payload with no elements.
	ErrEmptyBatch = errors.New("batch must not be empty")
	// ErrBadVersion indicates a jsonrpc field other than "2.0".
	ErrBadVersion = errors.New(`jsonrpc version must be "2.0"`)
	// ErrBadEnvelope indicates a message that is neither a request,
	// notification, nor response under the 2.0 shape rules.
	ErrBadEnvelope = errors.New("message does not match any JSON-RPC 2.0 shape")
)
