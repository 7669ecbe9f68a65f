// Package adapter wires the supervised child process, the frame pipeline,
// the subscriber engines, and the HTTP surface into a runnable service.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/galiniliev/remote-mcp-adapter/bridgehttp"
	"github.com/galiniliev/remote-mcp-adapter/config"
	"github.com/galiniliev/remote-mcp-adapter/internal/engine"
	"github.com/galiniliev/remote-mcp-adapter/internal/framing"
	"github.com/galiniliev/remote-mcp-adapter/internal/replay"
	"github.com/galiniliev/remote-mcp-adapter/internal/replay/memorystore"
	"github.com/galiniliev/remote-mcp-adapter/internal/replay/redisstore"
	"github.com/galiniliev/remote-mcp-adapter/internal/router"
	"github.com/galiniliev/remote-mcp-adapter/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	version string
	spec    *supervisor.ToolSpec
}

// WithLogger sets the slog logger shared by every component.
func WithLogger(log *slog.Logger) Option {
	return func(c *runConfig) { c.logger = log }
}

// WithVersion sets the version string surfaced at GET /.
func WithVersion(v string) Option {
	return func(c *runConfig) { c.version = v }
}

// WithToolSpec bypasses the MCP config file and runs the given tool.
func WithToolSpec(spec supervisor.ToolSpec) Option {
	return func(c *runConfig) { c.spec = &spec }
}

// Run assembles the adapter and serves until ctx is canceled, then shuts
// down gracefully: subscribers first, then the child, then the listener.
func Run(ctx context.Context, cfg config.Config, opts ...Option) error {
	rc := &runConfig{logger: slog.Default(), version: "dev"}
	for _, opt := range opts {
		opt(rc)
	}
	log := rc.logger

	spec, err := resolveSpec(cfg, rc)
	if err != nil {
		return err
	}

	store, err := newReplayStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engCfg := engine.Config{
		MaxSubscribers:    cfg.MaxSubscribers,
		MaxBufferBytes:    cfg.MaxBufferSize,
		KeepaliveInterval: cfg.KeepaliveInterval,
	}
	sseEng := engine.NewSSE(engCfg, engine.WithLogger(log))
	ndjsonEng := engine.NewNDJSON(engCfg, store, engine.WithLogger(log))

	rt := router.New(log, sseEng, ndjsonEng)
	stdout := framing.NewSplitter(rt.Route)
	stderr := framing.NewSplitter(func(line string) {
		log.Warn("proc.stderr", slog.String("line", line))
	})

	sup := supervisor.New(spec, supervisor.Callbacks{
		Stdout: stdout,
		Stderr: stderr,
	},
		supervisor.WithLogger(log),
		supervisor.WithBackoff(cfg.RestartBackoffBase, cfg.RestartBackoffMax),
		supervisor.WithLazyStart(cfg.LazyStart),
	)

	handler, err := bridgehttp.New(sup, sseEng, ndjsonEng,
		bridgehttp.WithLogger(log),
		bridgehttp.WithServerInfo("remote-mcp-adapter", rc.version),
		bridgehttp.WithMaxMessageSize(cfg.MaxMessageSize),
	)
	if err != nil {
		return err
	}

	if !cfg.LazyStart {
		if err := sup.Start(); err != nil {
			// The restart path is already armed; the adapter stays up and
			// serves 503s until the child comes back.
			log.Error("proc.start.fail", slog.String("err", err.Error()))
		}
	}

	if cfg.StreamTimeout > 0 {
		go sweepIdle(ctx, cfg.StreamTimeout, sseEng, ndjsonEng)
	}
	if cfg.WatchConfig {
		go func() {
			if err := watchConfig(ctx, log, cfg, sup); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("config.watch.fail", slog.String("err", err.Error()))
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Info("server.start", slog.Int("port", cfg.Port), slog.String("command", spec.Command))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("server.shutdown.start")
	sseEng.CloseAll()
	ndjsonEng.CloseAll()
	if err := sup.Stop(shutdownCtx); err != nil {
		log.Warn("proc.stop.fail", slog.String("err", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server.shutdown.fail", slog.String("err", err.Error()))
	}
	log.Info("server.shutdown.done")
	return runErr
}

func resolveSpec(cfg config.Config, rc *runConfig) (supervisor.ToolSpec, error) {
	if rc.spec != nil {
		return *rc.spec, nil
	}
	return config.LoadToolSpec(cfg.MCPConfigPath, cfg.ServerName, nil)
}

func newReplayStore(cfg config.Config) (replay.Store, error) {
	if cfg.RedisAddr != "" {
		return redisstore.New(redisstore.Config{
			RedisAddr: cfg.RedisAddr,
			MaxBytes:  cfg.MaxBufferSize,
		})
	}
	return memorystore.New(cfg.MaxBufferSize), nil
}

// sweepIdle enforces the advisory stream timeout.
func sweepIdle(ctx context.Context, timeout time.Duration, engines ...*engine.Engine) {
	ticker := time.NewTicker(timeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, eng := range engines {
				eng.EvictIdle(timeout)
			}
		}
	}
}
