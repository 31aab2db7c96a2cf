package pool

import (
	"context"
	"time"

	"deepleelad/internal/engine"
	"deepleelad/internal/gtp"
)

// Engine is a running engine process as seen by the pool.
type Engine interface {
	Send(ctx context.Context, command string) (gtp.Response, error)
	// Stop must not return before the process has exited.
	Stop(ctx context.Context) error
	Pid() int
	Done() <-chan struct{}
}

// Launcher starts engine processes.
type Launcher interface {
	Launch(ctx context.Context, p engine.Profile, args []string) (Engine, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, p engine.Profile, args []string) (Engine, error)

func (f LauncherFunc) Launch(ctx context.Context, p engine.Profile, args []string) (Engine, error) {
	return f(ctx, p, args)
}

// Instance is one leased engine process. It belongs to exactly one session
// from Lease until Release.
type Instance struct {
	ID       string
	Kind     string
	LeasedAt time.Time

	engine    Engine
	releasing bool // guarded by Manager.mu
}

// Send relays one GTP command to the leased engine.
func (i *Instance) Send(ctx context.Context, command string) (gtp.Response, error) {
	return i.engine.Send(ctx, command)
}

// Pid returns the engine's OS process id.
func (i *Instance) Pid() int { return i.engine.Pid() }

// Exited is closed once the engine process has exited.
func (i *Instance) Exited() <-chan struct{} { return i.engine.Done() }
