package engine

import (
	"context"
	"sync"
	"time"
)

// Sink is the remote byte-writer for one streaming connection. WriteFrame
// may block while the peer applies backpressure; Close must unblock any
// in-flight WriteFrame where the transport allows it.
type Sink interface {
	WriteFrame(p []byte) error
	Close() error
}

// entry is one queued item. Data entries carry the frame text and are
// rendered with the engine's wire format at flush time; control entries
// (keepalives) carry preformatted wire bytes and don't count against the
// buffer ceiling.
type entry struct {
	frame string
	wire  []byte
}

// Subscriber is one open streaming connection. It is created by
// Engine.Attach and owned exclusively by its engine; the HTTP handler
// goroutine drives delivery by calling Run.
type Subscriber struct {
	ID          string
	ConnectedAt time.Time

	eng  *Engine
	sink Sink

	mu           sync.Mutex
	queue        []entry
	queuedBytes  int
	lastActivity time.Time
	closed       bool

	wake     chan struct{}
	closedCh chan struct{}
}

// enqueue appends a data frame, evicting the subscriber instead when the
// frame would push queuedBytes past the engine's buffer ceiling.
func (s *Subscriber) enqueue(frame string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.queuedBytes+len(frame) > s.eng.cfg.MaxBufferBytes {
		s.mu.Unlock()
		s.eng.evict(s, "buffer_overrun")
		return
	}
	s.queue = append(s.queue, entry{frame: frame})
	s.queuedBytes += len(frame)
	s.mu.Unlock()
	s.signal()
}

// enqueueControl appends preformatted wire bytes (keepalive).
func (s *Subscriber) enqueueControl(wire []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, entry{wire: wire})
	s.mu.Unlock()
	s.signal()
}

func (s *Subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscriber) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// QueuedBytes reports the data bytes currently buffered.
func (s *Subscriber) QueuedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedBytes
}

// Run drains the queue to the sink until the subscriber is evicted or ctx is
// canceled (client disconnect). It is the flush state machine: idle between
// wakes, flushing while the queue has entries, waiting inside WriteFrame
// while the sink applies backpressure, closed on return.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.eng.evict(s, "disconnect")
			return ctx.Err()
		case <-s.closedCh:
			return ErrEvicted
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			e := s.queue[0]
			s.queue = s.queue[1:]
			if e.wire == nil {
				s.queuedBytes -= len(e.frame)
			}
			s.mu.Unlock()

			wire := e.wire
			if wire == nil {
				wire = s.eng.format(e.frame)
			}
			if err := s.sink.WriteFrame(wire); err != nil {
				s.eng.evict(s, "write_failure")
				return err
			}

			s.mu.Lock()
			s.lastActivity = time.Now()
			s.mu.Unlock()
		}
	}
}
