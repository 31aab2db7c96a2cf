package pool

import (
	"fmt"

	"deepleelad/internal/common/fsutil"
	"deepleelad/pkg/types"
)

// SanityCheck reports, per configured kind, whether the engine executable
// resolves and the weights file exists. It does not mutate state and is safe
// to call at any time.
func (m *Manager) SanityCheck() []types.EngineCheck {
	profiles := m.Profiles()
	out := make([]types.EngineCheck, 0, len(profiles))
	for _, kind := range profiles.Kinds() {
		p := profiles[kind]
		c := types.EngineCheck{Kind: kind, Exec: p.Exec, Weights: p.Weights}
		if _, err := fsutil.LookExec(p.Exec); err != nil {
			c.Error = err.Error()
		} else {
			c.ExecFound = true
		}
		if p.Weights != "" && !fsutil.PathExists(p.Weights) && c.Error == "" {
			c.Error = fmt.Sprintf("weights %s not found", p.Weights)
		}
		out = append(out, c)
	}
	return out
}
