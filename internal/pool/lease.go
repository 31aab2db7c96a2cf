package pool

import (
	"context"
	"time"

	"github.com/google/uuid"

	"deepleelad/internal/engine"
)

// Lease starts an engine of the given kind and hands it to the caller.
//
// The returned error, when non-nil, is always a *Rejection:
// ReasonCapacityExhausted when every slot is taken, ReasonUnknownEngine when
// kind is not configured, ReasonSpawnFailed when the process did not start.
// A rejected Lease leaves the pool unchanged.
func (m *Manager) Lease(ctx context.Context, kind string) (*Instance, error) {
	m.mu.Lock()
	// Check and reserve in one critical section so two concurrent leases can
	// never both take the last slot. The spawn happens after the reservation.
	if len(m.active)+m.pending >= m.capacity {
		capacity := m.capacity
		m.mu.Unlock()
		return nil, m.rejected(reject(ReasonCapacityExhausted, kind, nil), capacity)
	}
	p, ok := m.profiles[kind]
	if !ok {
		capacity := m.capacity
		m.mu.Unlock()
		return nil, m.rejected(reject(ReasonUnknownEngine, kind, nil), capacity)
	}
	m.pending++
	m.mu.Unlock()

	args := engine.Args(p)
	eng, err := m.launcher.Launch(ctx, p, args)

	m.mu.Lock()
	m.pending--
	if err != nil {
		capacity := m.capacity
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: EventSpawnFailed, Kind: kind, Fields: map[string]any{"error": err.Error()}})
		return nil, m.rejected(reject(ReasonSpawnFailed, kind, err), capacity)
	}
	inst := &Instance{
		ID:       uuid.NewString(),
		Kind:     kind,
		LeasedAt: time.Now(),
		engine:   eng,
	}
	m.active[inst] = struct{}{}
	n := len(m.active)
	m.mu.Unlock()

	poolActive.WithLabelValues(kind).Inc()
	m.log.Info().Str("kind", kind).Str("instance", inst.ID).Int("pid", eng.Pid()).Int("active", n).Msg("engine leased")
	m.publisher.Publish(Event{Name: EventLease, Kind: kind, Fields: map[string]any{"instance": inst.ID, "pid": eng.Pid(), "active": n}})
	return inst, nil
}

func (m *Manager) rejected(r *Rejection, capacity int) *Rejection {
	poolRejections.WithLabelValues(string(r.Reason)).Inc()
	ev := m.log.Info()
	if r.Reason == ReasonSpawnFailed {
		ev = m.log.Error().Err(r.Err)
	}
	ev.Str("kind", r.Kind).Str("reason", string(r.Reason)).Int("capacity", capacity).Msg("lease rejected")
	m.publisher.Publish(Event{Name: EventReject, Kind: r.Kind, Fields: map[string]any{"reason": string(r.Reason)}})
	return r
}
