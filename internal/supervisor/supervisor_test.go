package supervisor

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

// fakeWorker exits when exit is closed or when it receives SIGTERM.
type fakeWorker struct {
	pid        int
	exit       chan struct{}
	once       sync.Once
	ignoreTerm bool

	mu      sync.Mutex
	signals []os.Signal
}

func newFakeWorker(pid int) *fakeWorker {
	return &fakeWorker{pid: pid, exit: make(chan struct{})}
}

func (w *fakeWorker) Pid() int { return w.pid }

func (w *fakeWorker) Wait() error {
	<-w.exit
	return errors.New("exit status 1")
}

func (w *fakeWorker) Signal(sig os.Signal) error {
	w.mu.Lock()
	w.signals = append(w.signals, sig)
	w.mu.Unlock()
	if sig == syscall.SIGTERM && w.ignoreTerm {
		return nil
	}
	w.once.Do(func() { close(w.exit) })
	return nil
}

func (w *fakeWorker) got() []os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]os.Signal(nil), w.signals...)
}

// fakeSpawner hands out fakeWorkers; the first crashes workers exit at once.
type fakeSpawner struct {
	mu         sync.Mutex
	crashes    int
	failFirst  int
	ignoreTerm bool
	spawned    []*fakeWorker
	attempts   int
	slots      map[int]int
}

func (s *fakeSpawner) Spawn(ctx context.Context, slot int) (Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFirst {
		return nil, errors.New("fork: resource temporarily unavailable")
	}
	w := newFakeWorker(100 + len(s.spawned))
	w.ignoreTerm = s.ignoreTerm
	if len(s.spawned) < s.crashes {
		close(w.exit)
	}
	s.spawned = append(s.spawned, w)
	if s.slots == nil {
		s.slots = make(map[int]int)
	}
	s.slots[slot]++
	return w, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

func (s *fakeSpawner) last() *fakeWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned[len(s.spawned)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func runSupervisor(t *testing.T, s *Supervisor) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Errorf("supervisor did not stop")
		}
	})
	return cancel, done
}

func TestRestartsEveryExit(t *testing.T) {
	sp := &fakeSpawner{crashes: 5}
	s := New(Config{Workers: 1, Spawner: sp})
	runSupervisor(t, s)

	// five exits are followed by five replacements; the sixth worker stays up
	waitFor(t, "sixth worker", func() bool { return sp.count() >= 6 })
	time.Sleep(20 * time.Millisecond)
	if n := sp.count(); n != 6 {
		t.Fatalf("expected 6 spawns (1 + 5 restarts), got %d", n)
	}
}

func TestWorkersPerSlot(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Config{Workers: 3, Spawner: sp})
	runSupervisor(t, s)
	waitFor(t, "three workers", func() bool { return len(s.Pids()) == 3 })
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for slot := 0; slot < 3; slot++ {
		if sp.slots[slot] != 1 {
			t.Fatalf("slot %d spawned %d times", slot, sp.slots[slot])
		}
	}
}

func TestShutdownSignalsWorkers(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Config{Workers: 2, Spawner: sp})
	cancel, done := runSupervisor(t, s)
	waitFor(t, "workers", func() bool { return sp.count() == 2 })

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("supervisor did not stop")
	}
	for _, w := range sp.spawned {
		sigs := w.got()
		if len(sigs) != 1 || sigs[0] != syscall.SIGTERM {
			t.Fatalf("worker %d got signals %v", w.pid, sigs)
		}
	}
	if sp.count() != 2 {
		t.Fatalf("workers respawned during shutdown")
	}
	if len(s.Pids()) != 0 {
		t.Fatalf("live workers after shutdown: %v", s.Pids())
	}
}

func TestShutdownKillsStubbornWorker(t *testing.T) {
	sp := &fakeSpawner{ignoreTerm: true}
	s := New(Config{Workers: 1, Spawner: sp, ShutdownGrace: 20 * time.Millisecond})
	cancel, done := runSupervisor(t, s)
	waitFor(t, "worker", func() bool { return sp.count() == 1 })
	cancel()
	<-done
	sigs := sp.last().got()
	if len(sigs) != 2 || sigs[0] != syscall.SIGTERM || sigs[1] != syscall.SIGKILL {
		t.Fatalf("expected SIGTERM then SIGKILL, got %v", sigs)
	}
}

func TestSpawnFailureRetries(t *testing.T) {
	sp := &fakeSpawner{failFirst: 2}
	s := New(Config{Workers: 1, Spawner: sp})
	var mu sync.Mutex
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	runSupervisor(t, s)
	waitFor(t, "worker after failed spawns", func() bool { return sp.count() == 1 })
	mu.Lock()
	defer mu.Unlock()
	if len(slept) != 2 || slept[0] != defaultSpawnRetry {
		t.Fatalf("unexpected retry sleeps %v", slept)
	}
}

func TestCrashLoopPolicyDelaysRestarts(t *testing.T) {
	sp := &fakeSpawner{crashes: 6}
	s := New(Config{
		Workers: 1,
		Spawner: sp,
		Policy:  Policy{Burst: 2, Window: time.Hour, BaseDelay: time.Second, MaxDelay: 4 * time.Second},
	})
	var mu sync.Mutex
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	runSupervisor(t, s)
	waitFor(t, "seventh worker", func() bool { return sp.count() >= 7 })

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("sleeps=%v want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleeps=%v want %v", slept, want)
		}
	}
}

func TestBackoffDisabledByDefault(t *testing.T) {
	b := newBackoff(Policy{})
	for i := 0; i < 100; i++ {
		if d := b.next(); d != 0 {
			t.Fatalf("restart %d delayed %v", i, d)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := newBackoff(Policy{Burst: 1, Window: time.Hour})
	if d := b.next(); d != 0 {
		t.Fatalf("first restart delayed %v", d)
	}
	if d := b.next(); d != defaultBaseDelay {
		t.Fatalf("expected base delay, got %v", d)
	}
	for i := 0; i < 20; i++ {
		b.next()
	}
	if d := b.next(); d != defaultMaxDelay {
		t.Fatalf("expected capped delay, got %v", d)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatalf("nil error should be code 0")
	}
	if ExitCode(errors.New("boom")) != -1 {
		t.Fatalf("non-exit error should be -1")
	}
}
