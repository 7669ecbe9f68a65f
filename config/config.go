// Package config resolves the adapter's runtime configuration: tuning knobs
// from the environment and the tool command from an MCP config file.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is read-only after startup. Defaults can be loaded via envdecode.
type Config struct {
	// Port the HTTP server listens on. ENV: PORT
	Port int `env:"PORT,default=3000"`
	// MCPConfigPath locates the MCP config file. ENV: MCP_CONFIG_PATH
	MCPConfigPath string `env:"MCP_CONFIG_PATH,default=mcp.json"`
	// ServerName selects among multiple configured servers; empty picks the
	// first stdio server. ENV: MCP_SERVER_NAME
	ServerName string `env:"MCP_SERVER_NAME"`
	// MaxBufferSize caps each subscriber's queue and the replay buffer, in
	// bytes. ENV: MAX_BUFFER_SIZE
	MaxBufferSize int `env:"MAX_BUFFER_SIZE,default=1048576"`
	// MaxSubscribers caps concurrent subscribers per engine. ENV: MAX_SUBSCRIBERS
	MaxSubscribers int `env:"MAX_SUBSCRIBERS,default=100"`
	// MaxMessageSize caps ingress POST bodies, in bytes. ENV: MAX_MESSAGE_SIZE
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE,default=1048576"`
	// KeepaliveInterval between SSE keepalive comments. ENV: KEEPALIVE_INTERVAL
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL,default=30s"`
	// StreamTimeout is the advisory idle cutoff; zero disables the sweep.
	// ENV: STREAM_TIMEOUT
	StreamTimeout time.Duration `env:"STREAM_TIMEOUT,default=0"`
	// RestartBackoffBase seeds the exponential restart backoff. ENV: RESTART_BACKOFF_BASE
	RestartBackoffBase time.Duration `env:"RESTART_BACKOFF_BASE,default=1s"`
	// RestartBackoffMax caps the restart backoff. ENV: RESTART_BACKOFF_MAX
	RestartBackoffMax time.Duration `env:"RESTART_BACKOFF_MAX,default=30s"`
	// LazyStart defers spawning the child until the first ingress POST.
	// Opening a stream does not spawn it. ENV: LAZY_START
	LazyStart bool `env:"LAZY_START,default=false"`
	// RedisAddr, when set, backs the replay buffer with Redis instead of
	// process memory. ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`
	// WatchConfig restarts the child when the MCP config file changes.
	// ENV: WATCH_CONFIG
	WatchConfig bool `env:"WATCH_CONFIG,default=false"`
}

// FromEnv decodes a Config from the environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations no component can run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MaxBufferSize <= 0 {
		return fmt.Errorf("max buffer size must be positive: %d", c.MaxBufferSize)
	}
	if c.MaxSubscribers <= 0 {
		return fmt.Errorf("max subscribers must be positive: %d", c.MaxSubscribers)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive: %d", c.MaxMessageSize)
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("keepalive interval must be positive: %s", c.KeepaliveInterval)
	}
	if c.RestartBackoffBase <= 0 || c.RestartBackoffMax < c.RestartBackoffBase {
		return fmt.Errorf("restart backoff bounds invalid: base=%s max=%s",
			c.RestartBackoffBase, c.RestartBackoffMax)
	}
	return nil
}
