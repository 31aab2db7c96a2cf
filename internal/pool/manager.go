package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"deepleelad/internal/engine"
)

// Manager owns one worker's engine processes. Lease and Release are safe for
// concurrent use; |active| never exceeds the configured capacity.
type Manager struct {
	mu       sync.Mutex
	capacity int
	profiles engine.Table
	active   map[*Instance]struct{}
	// pending counts slots reserved by a Lease whose spawn is in progress.
	pending int

	launcher    Launcher
	publisher   EventPublisher
	stopTimeout time.Duration
	log         zerolog.Logger
}

// Configure replaces the capacity and profile table. Instances already leased
// stay tracked and are released normally.
func (m *Manager) Configure(capacity int, profiles engine.Table) {
	if capacity < 0 {
		capacity = 0
	}
	m.mu.Lock()
	m.capacity = capacity
	m.profiles = profiles.Clone()
	m.mu.Unlock()
	poolCapacity.Set(float64(capacity))
	m.log.Info().Int("capacity", capacity).Strs("engines", profiles.Kinds()).Msg("pool configured")
}

// Capacity returns the configured slot count.
func (m *Manager) Capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity
}

// Active returns the number of leased instances, including ones being released.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Profiles returns a copy of the configured profile table.
func (m *Manager) Profiles() engine.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles.Clone()
}

// Has reports whether inst is currently leased from m.
func (m *Manager) Has(inst *Instance) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[inst]
	return ok
}
