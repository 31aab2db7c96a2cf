package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deepleelad/internal/engine"
	"deepleelad/internal/gtp"
)

// fakeEngine is an in-memory Engine used for tests.
type fakeEngine struct {
	pid      int
	args     []string
	done     chan struct{}
	stopOnce sync.Once
	// stopGate, when set, blocks Stop until it is closed.
	stopGate chan struct{}
	stops    atomic.Int32
}

func (f *fakeEngine) Send(ctx context.Context, command string) (gtp.Response, error) {
	select {
	case <-f.done:
		return gtp.Response{}, gtp.ErrExited
	default:
	}
	return gtp.Response{Content: "ok " + command}, nil
}

func (f *fakeEngine) Stop(ctx context.Context) error {
	f.stops.Add(1)
	if f.stopGate != nil {
		<-f.stopGate
	}
	f.stopOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeEngine) Pid() int              { return f.pid }
func (f *fakeEngine) Done() <-chan struct{} { return f.done }

// fakeLauncher records launches and hands out fakeEngines.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []*fakeEngine
	profiles []engine.Profile
	err      error
	stopGate chan struct{}
	nextPID  int
}

func (l *fakeLauncher) Launch(ctx context.Context, p engine.Profile, args []string) (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.nextPID++
	e := &fakeEngine{pid: 1000 + l.nextPID, args: args, done: make(chan struct{}), stopGate: l.stopGate}
	l.launched = append(l.launched, e)
	l.profiles = append(l.profiles, p)
	return e, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

var errSpawn = errors.New("exec: no such file")

func testProfiles() engine.Table {
	return engine.Table{
		"engineA":            {Kind: "engineA", Exec: "/bin/engineA"},
		engine.KindLeela:     {Kind: engine.KindLeela, Exec: "/bin/leela", Playouts: 10},
		engine.KindLeelaZero: {Kind: engine.KindLeelaZero, Exec: "/bin/lz", Weights: "/w/lz.gz"},
	}
}

func newTestManager(t *testing.T, capacity int) (*Manager, *fakeLauncher, *MemoryPublisher) {
	t.Helper()
	l := &fakeLauncher{}
	pub := NewMemoryPublisher()
	m := New(ManagerConfig{Capacity: capacity, Profiles: testProfiles(), Launcher: l, Publisher: pub})
	return m, l, pub
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
