package pool

import (
	"time"

	"github.com/rs/zerolog"

	"deepleelad/internal/engine"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultStopTimeout = 5 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Capacity int
	Profiles engine.Table
	// Launcher starts engine processes; defaults to GTP child processes.
	Launcher  Launcher
	Publisher EventPublisher
	Logger    *zerolog.Logger
	// StopTimeout bounds the graceful quit before the engine is killed.
	StopTimeout time.Duration
}

// New constructs a Manager from ManagerConfig.
func New(cfg ManagerConfig) *Manager {
	m := &Manager{
		active:      make(map[*Instance]struct{}),
		launcher:    cfg.Launcher,
		publisher:   cfg.Publisher,
		stopTimeout: cfg.StopTimeout,
		log:         zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "pool").Logger()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.launcher == nil {
		m.launcher = GTPLauncher{Logger: m.log}
	}
	if m.stopTimeout <= 0 {
		m.stopTimeout = defaultStopTimeout
	}
	m.Configure(cfg.Capacity, cfg.Profiles)
	return m
}

// PerWorkerCapacity splits a system-wide engine budget across worker
// processes by integer division.
func PerWorkerCapacity(maxPlayers, workers int) int {
	if workers <= 0 {
		workers = 1
	}
	if maxPlayers <= 0 {
		return 0
	}
	return maxPlayers / workers
}
