package pool

import (
	"sort"

	"deepleelad/pkg/types"
)

// Snapshot returns a read-only view of the pool for /status.
func (m *Manager) Snapshot() types.PoolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := types.PoolStatus{
		Capacity: m.capacity,
		Active:   len(m.active),
		Pending:  m.pending,
		Engines:  m.profiles.Kinds(),
		ByKind:   make(map[string]int),
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.active))
	for inst := range m.active {
		resp.ByKind[inst.Kind]++
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			ID:        inst.ID,
			Kind:      inst.Kind,
			PID:       inst.engine.Pid(),
			LeasedAt:  inst.LeasedAt.Unix(),
			Releasing: inst.releasing,
		})
	}
	sort.Slice(resp.Instances, func(i, j int) bool {
		return resp.Instances[i].LeasedAt < resp.Instances[j].LeasedAt
	})
	return resp
}
