package router

import (
	"sync"
	"testing"
)

type captureEngine struct {
	mu     sync.Mutex
	frames []string
}

func (c *captureEngine) Broadcast(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *captureEngine) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func TestRouter(t *testing.T) {
	t.Run("valid frame broadcast to every engine canonically", func(t *testing.T) {
		a, b := &captureEngine{}, &captureEngine{}
		rt := New(nil, a, b)

		rt.Route(`{ "jsonrpc": "2.0", "id": 1, "result": {"ok": true} }`)

		want := `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`
		for name, eng := range map[string]*captureEngine{"a": a, "b": b} {
			frames := eng.snapshot()
			if len(frames) != 1 || frames[0] != want {
				t.Fatalf("engine %s frames = %v, want [%s]", name, frames, want)
			}
		}
	})

	t.Run("batch frame passes through whole", func(t *testing.T) {
		a := &captureEngine{}
		rt := New(nil, a)

		rt.Route(`[{"jsonrpc":"2.0","method":"x"},{"jsonrpc":"2.0","id":1,"result":{}}]`)
		frames := a.snapshot()
		if len(frames) != 1 {
			t.Fatalf("frames = %v", frames)
		}
	})

	t.Run("garbage and bad envelopes skipped", func(t *testing.T) {
		a := &captureEngine{}
		rt := New(nil, a)

		rt.Route(`not json at all`)
		rt.Route(`{"jsonrpc":"1.0","method":"x"}`)
		rt.Route(`"just a string"`)
		rt.Route(`{"jsonrpc":"2.0","id":7,"result":{}}`)

		frames := a.snapshot()
		if len(frames) != 1 || frames[0] != `{"jsonrpc":"2.0","id":7,"result":{}}` {
			t.Fatalf("frames = %v", frames)
		}
	})

	t.Run("order preserved", func(t *testing.T) {
		a := &captureEngine{}
		rt := New(nil, a)

		rt.Route(`{"jsonrpc":"2.0","id":1,"result":1}`)
		rt.Route(`this line is garbage`)
		rt.Route(`{"jsonrpc":"2.0","id":2,"result":2}`)

		frames := a.snapshot()
		if len(frames) != 2 ||
			frames[0] != `{"jsonrpc":"2.0","id":1,"result":1}` ||
			frames[1] != `{"jsonrpc":"2.0","id":2,"result":2}` {
			t.Fatalf("frames = %v", frames)
		}
	})
}
