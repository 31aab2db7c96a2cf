package supervisor

import (
	"time"

	"golang.org/x/time/rate"
)

// Policy controls how quickly a crashed worker is replaced.
//
// The zero Policy restarts immediately, every time. With Burst > 0, up to
// Burst restarts per Window are immediate; past that budget each restart
// waits BaseDelay·2^(n-1), capped at MaxDelay, where n counts the restarts
// since the budget last had room. A restart is delayed, never skipped.
type Policy struct {
	Burst     int
	Window    time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 30 * time.Second
)

// Enabled reports whether the crash-loop budget is active.
func (p Policy) Enabled() bool { return p.Burst > 0 && p.Window > 0 }

// backoff tracks one slot's restart budget.
type backoff struct {
	policy  Policy
	limiter *rate.Limiter
	streak  int
}

func newBackoff(p Policy) *backoff {
	b := &backoff{policy: p}
	if !p.Enabled() {
		return b
	}
	if b.policy.BaseDelay <= 0 {
		b.policy.BaseDelay = defaultBaseDelay
	}
	if b.policy.MaxDelay <= 0 {
		b.policy.MaxDelay = defaultMaxDelay
	}
	if b.policy.MaxDelay < b.policy.BaseDelay {
		b.policy.MaxDelay = b.policy.BaseDelay
	}
	b.limiter = rate.NewLimiter(rate.Every(p.Window/time.Duration(p.Burst)), p.Burst)
	return b
}

// next returns how long to wait before the next restart.
func (b *backoff) next() time.Duration {
	if b.limiter == nil {
		return 0
	}
	if b.limiter.Allow() {
		b.streak = 0
		return 0
	}
	b.streak++
	d := b.policy.BaseDelay
	for i := 1; i < b.streak; i++ {
		d *= 2
		if d >= b.policy.MaxDelay {
			return b.policy.MaxDelay
		}
	}
	if d > b.policy.MaxDelay {
		d = b.policy.MaxDelay
	}
	return d
}
