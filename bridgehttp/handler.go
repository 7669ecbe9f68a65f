package bridgehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/galiniliev/remote-mcp-adapter/internal/engine"
	"github.com/galiniliev/remote-mcp-adapter/internal/jsonrpc"
	"github.com/galiniliev/remote-mcp-adapter/internal/logctx"
	"github.com/galiniliev/remote-mcp-adapter/internal/supervisor"
)

var (
	_ http.Handler = (*Handler)(nil)

	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const streamUpgradeHeader = "X-MCP-Stream"

// ProcessWriter is the supervisor-side capability the ingress needs: frame
// delivery and a state snapshot for health reporting.
type ProcessWriter interface {
	Write(frame []byte) error
	State() supervisor.State
}

// writeJSONError emits the minimal error body used for all HTTP-layer
// rejections: {"error": "<reason>"}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger         *slog.Logger
	name           string
	version        string
	maxMessageSize int64
}

// WithLogger sets the slog logger used by the handler. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithServerInfo sets the name and version surfaced at GET /.
func WithServerInfo(name, version string) Option {
	return func(c *newConfig) { c.name, c.version = name, version }
}

// WithMaxMessageSize caps ingress POST bodies, in bytes.
func WithMaxMessageSize(n int64) Option {
	return func(c *newConfig) { c.maxMessageSize = n }
}

// Handler is the HTTP surface of the adapter: JSON-RPC ingress, the two
// streaming egress transports, health, and the index document. All origins,
// methods, and headers are allowed; authentication belongs to the gateway
// in front.
type Handler struct {
	log    *slog.Logger
	sup    ProcessWriter
	sse    *engine.Engine
	ndjson *engine.Engine

	name           string
	version        string
	maxMessageSize int64

	mux *http.ServeMux
}

// New constructs a Handler over the supervisor and the two engines.
func New(sup ProcessWriter, sse, ndjson *engine.Engine, opts ...Option) (*Handler, error) {
	if sup == nil {
		return nil, errors.New("process writer is required")
	}
	if sse == nil || ndjson == nil {
		return nil, errors.New("both engines are required")
	}

	cfg := &newConfig{
		logger:         slog.Default(),
		name:           "remote-mcp-adapter",
		version:        "dev",
		maxMessageSize: 1 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Handler{
		log:            slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		sup:            sup,
		sse:            sse,
		ndjson:         ndjson,
		name:           cfg.name,
		version:        cfg.version,
		maxMessageSize: cfg.maxMessageSize,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /mcp", h.handlePostMCP)
	mux.HandleFunc("GET /mcp/stream", h.handleGetStream)
	mux.HandleFunc("GET /mcp/streamable", h.handleGetStreamable)
	mux.HandleFunc("POST /mcp/streamable", h.handlePostStreamable)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleHealthz reports adapter health. Degraded once the child has needed
// more than five restarts; unhealthy (503) while it is down after at least
// one restart.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := h.sup.State()

	status := "healthy"
	code := http.StatusOK
	if st.RestartCount > 5 {
		status = "degraded"
	}
	if !st.Running && st.RestartCount > 0 {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	proc := map[string]any{
		"running":      st.Running,
		"restartCount": st.RestartCount,
	}
	if st.Running {
		proc["pid"] = st.PID
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"process":   proc,
		"subscribers": map[string]int{
			"sse":            h.sse.Len(),
			"streamableHttp": h.ndjson.Len(),
		},
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    h.name,
		"version": h.version,
		"endpoints": map[string]string{
			"ingress":    "/mcp",
			"stream":     "/mcp/stream",
			"streamable": "/mcp/streamable",
			"health":     "/healthz",
		},
	})
}

// relayBody validates and forwards an ingress body to child stdin. It
// returns the number of frames written and whether the caller may proceed;
// on false the response has already been written.
func (h *Handler) relayBody(w http.ResponseWriter, r *http.Request) (int, bool) {
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusBadRequest, "content-type must be application/json")
		h.log.WarnContext(ctx, "ingress.content_type.unsupported")
		return 0, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body exceeds limit")
			h.log.WarnContext(ctx, "ingress.body.too_large", slog.Int64("limit", h.maxMessageSize))
			return 0, false
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		h.log.WarnContext(ctx, "ingress.body.read_fail", slog.String("err", err.Error()))
		return 0, false
	}

	frames, err := jsonrpc.NormalizeBody(body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		h.log.WarnContext(ctx, "ingress.envelope.invalid", slog.String("err", err.Error()))
		return 0, false
	}

	for i, frame := range frames {
		line := make([]byte, 0, len(frame)+1)
		line = append(line, frame...)
		line = append(line, '\n')
		if err := h.sup.Write(line); err != nil {
			if errors.Is(err, supervisor.ErrNotRunning) {
				writeJSONError(w, http.StatusServiceUnavailable, "child process is not running")
				h.log.WarnContext(ctx, "ingress.child.down")
				return i, false
			}
			writeJSONError(w, http.StatusInternalServerError, "failed to deliver message")
			h.log.ErrorContext(ctx, "ingress.write.fail", slog.String("err", err.Error()))
			return i, false
		}
	}

	h.log.InfoContext(ctx, "ingress.accepted", slog.Int("messages", len(frames)))
	return len(frames), true
}

// handlePostMCP accepts a JSON-RPC object or batch and relays it to child
// stdin. The 202 acknowledges queueing only; replies arrive on the streams.
func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	count, ok := h.relayBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"messageCount": count,
	})
}

// handleGetStream attaches the caller as an SSE subscriber.
func (h *Handler) handleGetStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "accept must include text/event-stream")
			h.log.WarnContext(ctx, "sse.accept.unsupported")
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.serveStream(w, r, h.sse, "sse")
}

// handleGetStreamable attaches the caller as a chunked NDJSON subscriber.
func (h *Handler) handleGetStreamable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	h.serveStream(w, r, h.ndjson, "streamable")
}

// handlePostStreamable relays like POST /mcp, then either acknowledges or,
// when the client asked via ?stream=true or the X-MCP-Stream header,
// upgrades the same response into a chunked NDJSON subscription.
func (h *Handler) handlePostStreamable(w http.ResponseWriter, r *http.Request) {
	count, ok := h.relayBody(w, r)
	if !ok {
		return
	}

	upgrade := r.URL.Query().Get("stream") == "true" ||
		strings.EqualFold(r.Header.Get(streamUpgradeHeader), "true")
	if !upgrade {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":       "accepted",
			"messageCount": count,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	h.serveStream(w, r, h.ndjson, "streamable")
}

// serveStream runs the subscribe-flush-detach lifecycle on the caller's
// goroutine. Streaming headers must already be set; they are withdrawn again
// if the attach is rejected for capacity.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, eng *engine.Engine, transport string) {
	ctx := r.Context()

	sink := newHTTPSink(w)
	sub, err := eng.Attach(ctx, sink)
	if err != nil {
		for _, header := range []string{"Content-Type", "Cache-Control", "Connection", "Transfer-Encoding", "X-Accel-Buffering"} {
			w.Header().Del(header)
		}
		if errors.Is(err, engine.ErrCapacity) || errors.Is(err, engine.ErrEngineClosed) {
			writeJSONError(w, http.StatusServiceUnavailable, "subscriber capacity exceeded")
			h.log.WarnContext(ctx, "stream.capacity", slog.String("transport", transport))
			return
		}
		h.log.WarnContext(ctx, "stream.open.fail", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithStreamData(ctx, &logctx.StreamData{SubscriberID: sub.ID, Transport: transport})
	h.log.InfoContext(ctx, "stream.start")

	start := time.Now()
	runErr := sub.Run(ctx)
	switch {
	case runErr == nil || errors.Is(runErr, engine.ErrEvicted):
		h.log.InfoContext(ctx, "stream.end", slog.Duration("dur", time.Since(start)))
	case errors.Is(runErr, context.Canceled):
		h.log.InfoContext(ctx, "stream.disconnect", slog.Duration("dur", time.Since(start)))
	default:
		h.log.WarnContext(ctx, "stream.fail", slog.String("err", runErr.Error()))
	}
}

// httpSink adapts an http.ResponseWriter into an engine.Sink. The mutex
// serializes the run loop's writes with the engine's shutdown sentinel;
// Close uses an immediate write deadline to unblock a write stuck behind a
// stalled peer.
type httpSink struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newHTTPSink(w http.ResponseWriter) *httpSink {
	return &httpSink{w: w, rc: http.NewResponseController(w)}
}

func (s *httpSink) WriteFrame(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *httpSink) Close() error {
	return s.rc.SetWriteDeadline(time.Now())
}
