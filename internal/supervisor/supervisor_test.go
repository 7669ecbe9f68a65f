package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// lineCollector gathers stdout bytes for assertions.
type lineCollector struct {
	mu  sync.Mutex
	buf []byte
}

func (c *lineCollector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *lineCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func catSpec() ToolSpec { return ToolSpec{Command: "cat"} }

func TestWriteWithoutChild(t *testing.T) {
	sup := New(catSpec(), Callbacks{Stdout: &lineCollector{}})
	if err := sup.Write([]byte("{}\n")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want %v", err, ErrNotRunning)
	}
}

func TestEchoRoundTrip(t *testing.T) {
	out := &lineCollector{}
	sup := New(catSpec(), Callbacks{Stdout: out})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop(context.Background())

	if err := sup.Start(); err != nil {
		t.Fatalf("second start not idempotent: %v", err)
	}

	line := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}` + "\n"
	if err := sup.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, "echo", func() bool { return out.String() == line })

	st := sup.State()
	if !st.Running || st.PID == 0 {
		t.Fatalf("state = %+v", st)
	}
}

func TestLazyStartWrite(t *testing.T) {
	out := &lineCollector{}
	sup := New(catSpec(), Callbacks{Stdout: out},
		WithLazyStart(true),
		WithWriteDelay(20*time.Millisecond),
	)
	defer sup.Stop(context.Background())

	if err := sup.Write([]byte("{\"a\":1}\n")); err != nil {
		t.Fatalf("lazy write: %v", err)
	}
	if !sup.IsRunning() {
		t.Fatal("child not spawned by lazy write")
	}
	waitFor(t, "deferred delivery", func() bool { return out.String() == "{\"a\":1}\n" })
}

func TestRestartOnCrash(t *testing.T) {
	sup := New(ToolSpec{Command: "sh", Args: []string{"-c", "exit 1"}},
		Callbacks{Stdout: &lineCollector{}},
		WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "repeated restarts", func() bool { return sup.State().RestartCount >= 3 })

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	count := sup.State().RestartCount
	time.Sleep(150 * time.Millisecond)
	if got := sup.State().RestartCount; got != count {
		t.Fatalf("restarts continued after stop: %d -> %d", count, got)
	}
}

func TestCleanExitNoRestart(t *testing.T) {
	exits := make(chan int, 1)
	sup := New(ToolSpec{Command: "sh", Args: []string{"-c", "exit 0"}},
		Callbacks{
			Stdout: &lineCollector{},
			OnExit: func(code int, signaled bool) { exits <- code },
		},
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
	)
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case code := <-exits:
		if code != 0 {
			t.Fatalf("exit code = %d", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no exit observed")
	}

	time.Sleep(100 * time.Millisecond)
	st := sup.State()
	if st.Running || st.RestartCount != 0 {
		t.Fatalf("clean exit should not restart: %+v", st)
	}
}

func TestSpawnFailureSchedulesRestart(t *testing.T) {
	sup := New(ToolSpec{Command: "definitely-not-a-real-command-xyz"},
		Callbacks{Stdout: &lineCollector{}},
		WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	if err := sup.Start(); err == nil {
		t.Fatal("spawn of missing command succeeded")
	}
	waitFor(t, "retry attempts", func() bool { return sup.State().RestartCount >= 2 })
	sup.Stop(context.Background())
}

func TestStopIdempotentAndFinal(t *testing.T) {
	sup := New(catSpec(), Callbacks{Stdout: &lineCollector{}})
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := sup.Start(); !errors.Is(err, ErrStopped) {
		t.Fatalf("start after stop = %v, want %v", err, ErrStopped)
	}
	if sup.IsRunning() {
		t.Fatal("still running after stop")
	}
}

func TestReloadSwapsSpec(t *testing.T) {
	out := &lineCollector{}
	sup := New(ToolSpec{Command: "sleep", Args: []string{"60"}},
		Callbacks{Stdout: out},
		WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	if err := sup.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sup.Stop(context.Background())

	firstPID := sup.State().PID
	sup.Reload(ToolSpec{Command: "sh", Args: []string{"-c", "echo new; cat >/dev/null"}})

	waitFor(t, "replacement child", func() bool {
		st := sup.State()
		return st.Running && st.PID != firstPID
	})
	waitFor(t, "new child output", func() bool { return out.String() != "" })
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(base, max, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s want %s", tc.attempt, got, tc.want)
		}
	}
}
