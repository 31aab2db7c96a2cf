package pool

import (
	"context"
	"sync"
	"time"
)

// Release stops a leased engine and frees its slot. It asks the engine to
// quit, waits for the process to exit (killing it after the stop timeout),
// and only then removes the instance, so a new lease can never be admitted
// into a slot whose process is still running.
//
// Release must be called at most once per instance. Releasing an instance
// that is not leased, or is already being released, returns a
// ReasonNotLeased rejection and leaves the pool unchanged.
func (m *Manager) Release(ctx context.Context, inst *Instance) error {
	if inst == nil {
		return reject(ReasonNotLeased, "", nil)
	}
	m.mu.Lock()
	if _, ok := m.active[inst]; !ok || inst.releasing {
		m.mu.Unlock()
		poolRejections.WithLabelValues(string(ReasonNotLeased)).Inc()
		return reject(ReasonNotLeased, inst.Kind, nil)
	}
	inst.releasing = true
	m.mu.Unlock()

	// A session's context is usually already canceled by the time it
	// releases; the graceful stop gets its own deadline.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.stopTimeout)
	err := inst.engine.Stop(stopCtx)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Str("kind", inst.Kind).Str("instance", inst.ID).Msg("engine stop was forced")
	}

	m.mu.Lock()
	delete(m.active, inst)
	n := len(m.active)
	m.mu.Unlock()

	held := time.Since(inst.LeasedAt)
	poolActive.WithLabelValues(inst.Kind).Dec()
	poolLeaseDuration.WithLabelValues(inst.Kind).Observe(held.Seconds())
	m.log.Info().Str("kind", inst.Kind).Str("instance", inst.ID).Dur("held", held).Int("active", n).Msg("engine released")
	m.publisher.Publish(Event{Name: EventRelease, Kind: inst.Kind, Fields: map[string]any{"instance": inst.ID, "active": n}})
	return nil
}

// StopAll releases every leased instance concurrently and waits for all of
// them. Used on worker shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.active))
	for inst := range m.active {
		if !inst.releasing {
			insts = append(insts, inst)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range insts {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			// a concurrent session release wins; that is fine
			_ = m.Release(ctx, inst)
		}(inst)
	}
	wg.Wait()
}
