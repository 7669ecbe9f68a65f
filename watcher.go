package adapter

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/galiniliev/remote-mcp-adapter/config"
	"github.com/galiniliev/remote-mcp-adapter/internal/supervisor"
)

// Debounce window for editors that write config files in multiple events.
const reloadDebounce = 250 * time.Millisecond

// watchConfig watches the MCP config file and restarts the child with the
// freshly loaded tool spec when it changes. The parent directory is watched
// rather than the file, since most editors replace rather than rewrite.
func watchConfig(ctx context.Context, log *slog.Logger, cfg config.Config, sup *supervisor.Supervisor) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(cfg.MCPConfigPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(cfg.MCPConfigPath)
	log.Info("config.watch.start", slog.String("path", target))

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config.watch.err", slog.String("err", err.Error()))
		case <-reload:
			spec, err := config.LoadToolSpec(cfg.MCPConfigPath, cfg.ServerName, nil)
			if err != nil {
				log.Error("config.reload.fail", slog.String("err", err.Error()))
				continue
			}
			log.Info("config.reload", slog.String("command", spec.Command))
			sup.Reload(spec)
		}
	}
}
