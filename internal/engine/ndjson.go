package engine

import (
	"log/slog"

	"github.com/galiniliev/remote-mcp-adapter/internal/replay"
)

// NDJSON synthetic frames. ForceFlushFrame exists only to push response
// headers through buffering intermediaries when a fresh subscriber has
// nothing to replay; clients should ignore the method.
const (
	ForceFlushFrame = `{"jsonrpc":"2.0","method":"_stream_opened"}`
	closingFrame    = `{"jsonrpc":"2.0","method":"_stream_closing"}`
)

func formatNDJSON(frame string) []byte {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	return buf
}

// NewNDJSON constructs the chunked newline-delimited flavor: "<frame>\n"
// framing, no keepalive, and a replay store that captures broadcasts while
// no subscriber is attached. The first subscriber to attach receives the
// replay contents; later ones do not.
func NewNDJSON(cfg Config, store replay.Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		log:        slog.Default(),
		name:       "ndjson",
		format:     formatNDJSON,
		sentinel:   formatNDJSON(closingFrame),
		forceFlush: ForceFlushFrame,
		store:      store,
		subs:       make(map[string]*Subscriber),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
