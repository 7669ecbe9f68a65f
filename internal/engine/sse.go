package engine

import "log/slog"

// SSE wire framing. The opening comment and keepalives are SSE comment
// lines, invisible to event consumers but enough to keep intermediaries from
// buffering or timing the connection out.
var (
	sseOpening   = []byte(": stream opened\n\n")
	sseKeepalive = []byte(": keepalive\n\n")
	sseSentinel  = []byte(": stream closing\n\n")
)

func formatSSE(frame string) []byte {
	buf := make([]byte, 0, len("data: ")+len(frame)+2)
	buf = append(buf, "data: "...)
	buf = append(buf, frame...)
	buf = append(buf, '\n', '\n')
	return buf
}

// NewSSE constructs the event-stream flavor: "data: <frame>\n\n" framing,
// periodic keepalive comments, no replay.
func NewSSE(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		log:       slog.Default(),
		name:      "sse",
		format:    formatSSE,
		opening:   sseOpening,
		keepalive: sseKeepalive,
		sentinel:  sseSentinel,
		subs:      make(map[string]*Subscriber),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
