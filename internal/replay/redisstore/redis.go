// Package redisstore is a Redis-backed replay.Store for operators who want
// the pre-attach buffer to survive adapter restarts.
package redisstore

import (
	"context"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis-backed replay store. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: REPLAY_KEY_PREFIX
	KeyPrefix string `env:"REPLAY_KEY_PREFIX,default=mcp:replay:"`
	// MaxBytes is the buffer byte ceiling.
	MaxBytes int
}

// Store buffers frames in a Redis list, with the running byte total kept in
// a companion counter key.
type Store struct {
	client *redis.Client
	prefix string
	cap    int
}

// New constructs a Store and verifies connectivity.
func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:replay:"
	}
	return &Store{client: cl, prefix: prefix, cap: cfg.MaxBytes}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config, then applies
// the byte ceiling.
func NewFromEnv(maxBytes int) (*Store, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	cfg.MaxBytes = maxBytes
	return New(cfg)
}

func (s *Store) framesKey() string { return s.prefix + "frames" }
func (s *Store) bytesKey() string  { return s.prefix + "bytes" }

// Append implements replay.Store.
func (s *Store) Append(ctx context.Context, frame string) (bool, error) {
	size, err := s.client.Get(ctx, s.bytesKey()).Int()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if size+len(frame) > s.cap {
		return true, nil
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.framesKey(), frame)
	pipe.IncrBy(ctx, s.bytesKey(), int64(len(frame)))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis append: %w", err)
	}
	return false, nil
}

// Drain implements replay.Store.
func (s *Store) Drain(ctx context.Context) ([]string, error) {
	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, s.framesKey(), 0, -1)
	pipe.Del(ctx, s.framesKey(), s.bytesKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis drain: %w", err)
	}
	return rangeCmd.Val(), nil
}

// Size implements replay.Store.
func (s *Store) Size(ctx context.Context) (int, error) {
	size, err := s.client.Get(ctx, s.bytesKey()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return size, nil
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }
