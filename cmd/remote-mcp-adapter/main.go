package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	adapter "github.com/galiniliev/remote-mcp-adapter"
	"github.com/galiniliev/remote-mcp-adapter/config"
)

// version is stamped via -ldflags at release time.
var version = "dev"

type options struct {
	Port      int    `short:"p" long:"port" description:"HTTP listen port (overrides PORT)"`
	Config    string `short:"c" long:"config" description:"MCP config file path (overrides MCP_CONFIG_PATH)"`
	Server    string `long:"server" description:"Named server to run (overrides MCP_SERVER_NAME)"`
	LazyStart bool   `long:"lazy-start" description:"Spawn the child on first ingress POST (opening a stream does not spawn it)"`
	Verbose   bool   `short:"v" long:"verbose" description:"Enable debug logging"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("config.invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.Config != "" {
		cfg.MCPConfigPath = opts.Config
	}
	if opts.Server != "" {
		cfg.ServerName = opts.Server
	}
	if opts.LazyStart {
		cfg.LazyStart = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := adapter.Run(ctx, cfg, adapter.WithLogger(log), adapter.WithVersion(version)); err != nil {
		log.Error("adapter.fatal", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
