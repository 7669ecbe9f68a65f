// Package engine implements the bounded, backpressure-aware fan-out of child
// output frames to streaming subscribers. Two wire flavors exist, SSE and
// chunked NDJSON, sharing the same subscriber mechanics and differing only
// in framing, keepalive, and replay behavior.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/galiniliev/remote-mcp-adapter/internal/replay"
)

var (
	// ErrCapacity is returned by Attach when the engine is at its
	// subscriber ceiling. The HTTP layer maps it to 503.
	ErrCapacity = errors.New("subscriber capacity exceeded")
	// ErrEngineClosed is returned by Attach after CloseAll.
	ErrEngineClosed = errors.New("engine is closed")
	// ErrEvicted is returned from Subscriber.Run when the engine removed
	// the subscriber while Run was waiting for work (buffer overrun, idle
	// sweep, or shutdown). When a sink write fails, including a write cut
	// short by eviction, Run returns that write error instead.
	ErrEvicted = errors.New("subscriber evicted")
)

// Config carries the per-engine tuning knobs.
type Config struct {
	// MaxSubscribers caps concurrent subscribers.
	MaxSubscribers int
	// MaxBufferBytes caps each subscriber's queued frame bytes.
	MaxBufferBytes int
	// KeepaliveInterval is the period between keepalive writes. Only
	// meaningful for flavors with a keepalive frame.
	KeepaliveInterval time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the slog logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine tracks the live subscribers of one wire flavor and broadcasts each
// frame to all of them, in router order, through bounded per-subscriber
// queues.
type Engine struct {
	cfg  Config
	log  *slog.Logger
	name string

	format     func(frame string) []byte
	opening    []byte
	keepalive  []byte
	sentinel   []byte
	forceFlush string

	// store is non-nil only for the NDJSON flavor.
	store replay.Store

	mu            sync.Mutex
	subs          map[string]*Subscriber
	keepaliveStop chan struct{}
	closed        bool
}

// Attach registers a new subscriber over the given sink. The opening bytes
// (if the flavor has any) are written immediately so intermediaries flush
// response headers. Fails with ErrCapacity at the subscriber ceiling.
func (e *Engine) Attach(ctx context.Context, sink Sink) (*Subscriber, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	if len(e.subs) >= e.cfg.MaxSubscribers {
		e.mu.Unlock()
		return nil, ErrCapacity
	}

	sub := &Subscriber{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		eng:         e,
		sink:        sink,
		wake:        make(chan struct{}, 1),
		closedCh:    make(chan struct{}),
	}
	sub.lastActivity = sub.ConnectedAt
	e.subs[sub.ID] = sub
	first := len(e.subs) == 1
	if first && e.keepalive != nil {
		e.startKeepaliveLocked()
	}
	e.mu.Unlock()

	if e.opening != nil {
		if err := sink.WriteFrame(e.opening); err != nil {
			e.evict(sub, "open_write_failure")
			return nil, err
		}
	}

	if e.store != nil && first {
		frames, err := e.store.Drain(ctx)
		if err != nil {
			e.log.Error("engine.replay.drain.fail", slog.String("err", err.Error()))
		}
		for _, frame := range frames {
			sub.enqueue(frame)
		}
		e.log.Info("engine.replay.drain",
			slog.String("sub", sub.ID),
			slog.Int("frames", len(frames)))
	}
	if e.forceFlush != "" && sub.queueLen() == 0 {
		// Synthetic frame whose only job is to push headers through
		// buffering intermediaries.
		sub.enqueue(e.forceFlush)
	}

	e.log.Info("engine.attach",
		slog.String("engine", e.name),
		slog.String("sub", sub.ID),
		slog.Int("subscribers", e.Len()))
	return sub, nil
}

// Broadcast enqueues one frame for every live subscriber. For the NDJSON
// flavor with no subscribers attached, the frame lands in the replay store
// instead.
func (e *Engine) Broadcast(frame string) {
	e.mu.Lock()
	if e.store != nil && len(e.subs) == 0 && !e.closed {
		store := e.store
		e.mu.Unlock()
		dropped, err := store.Append(context.Background(), frame)
		if err != nil {
			e.log.Error("engine.replay.append.fail", slog.String("err", err.Error()))
		} else if dropped {
			e.log.Warn("engine.replay.full", slog.Int("frame_bytes", len(frame)))
		}
		return
	}
	subs := make([]*Subscriber, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(frame)
	}
}

// Len returns the live subscriber count.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// EvictIdle removes subscribers whose last successful write is older than
// the cutoff. Advisory; only called when the operator set a stream timeout.
func (e *Engine) EvictIdle(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)
	e.mu.Lock()
	subs := make([]*Subscriber, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		idle := sub.lastActivity.Before(cutoff)
		sub.mu.Unlock()
		if idle {
			e.evict(sub, "idle")
		}
	}
}

// CloseAll writes the end-of-stream sentinel to each subscriber on a
// best-effort basis, then evicts everyone and refuses further attaches.
func (e *Engine) CloseAll() {
	e.mu.Lock()
	e.closed = true
	subs := make([]*Subscriber, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		if e.sentinel != nil {
			_ = sub.sink.WriteFrame(e.sentinel)
		}
		e.evict(sub, "shutdown")
	}
}

// evict closes the subscriber's sink, clears its queue, and removes it.
// Idempotent per subscriber.
func (e *Engine) evict(sub *Subscriber, reason string) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.queue = nil
	sub.queuedBytes = 0
	sub.mu.Unlock()
	close(sub.closedCh)
	_ = sub.sink.Close()

	e.mu.Lock()
	delete(e.subs, sub.ID)
	if len(e.subs) == 0 && e.keepaliveStop != nil {
		close(e.keepaliveStop)
		e.keepaliveStop = nil
	}
	e.mu.Unlock()

	e.log.Info("engine.evict",
		slog.String("engine", e.name),
		slog.String("sub", sub.ID),
		slog.String("reason", reason))
}

// startKeepaliveLocked arms the keepalive ticker. Caller holds e.mu and has
// just transitioned the subscriber count from zero to one.
func (e *Engine) startKeepaliveLocked() {
	stop := make(chan struct{})
	e.keepaliveStop = stop
	go func() {
		ticker := time.NewTicker(e.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			e.mu.Lock()
			subs := make([]*Subscriber, 0, len(e.subs))
			for _, sub := range e.subs {
				subs = append(subs, sub)
			}
			e.mu.Unlock()
			for _, sub := range subs {
				sub.enqueueControl(e.keepalive)
			}
		}
	}()
}
