// Package router is the glue between the frame splitter and the subscriber
// engines: it validates each child output line as JSON-RPC and broadcasts
// the canonical text to every egress flavor.
package router

import (
	"log/slog"

	"github.com/galiniliev/remote-mcp-adapter/internal/jsonrpc"
)

// Broadcaster is the engine-side capability the router fans out to.
type Broadcaster interface {
	Broadcast(frame string)
}

// Router validates and re-broadcasts frames. It is stateless; ordering is
// inherited from the splitter's single-producer contract.
type Router struct {
	log     *slog.Logger
	engines []Broadcaster
}

// New constructs a Router broadcasting to the given engines.
func New(log *slog.Logger, engines ...Broadcaster) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, engines: engines}
}

// Route handles one complete line of child stdout. Lines that fail envelope
// validation are logged and skipped; the pipeline never stops on garbage.
func (r *Router) Route(line string) {
	if err := jsonrpc.ValidateFrame([]byte(line)); err != nil {
		r.log.Warn("router.frame.invalid",
			slog.String("err", err.Error()),
			slog.String("raw", line))
		return
	}
	canonical, err := jsonrpc.Canonical([]byte(line))
	if err != nil {
		r.log.Warn("router.frame.invalid",
			slog.String("err", err.Error()),
			slog.String("raw", line))
		return
	}
	frame := string(canonical)
	for _, eng := range r.engines {
		eng.Broadcast(frame)
	}
}
