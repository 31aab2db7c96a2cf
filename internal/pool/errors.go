package pool

import (
	"errors"
	"fmt"
)

// Reason classifies why a pool operation was refused.
type Reason string

const (
	ReasonCapacityExhausted Reason = "capacity_exhausted"
	ReasonUnknownEngine     Reason = "unknown_engine"
	ReasonSpawnFailed       Reason = "spawn_failed"
	ReasonNotLeased         Reason = "not_leased"
)

// Rejection is the error returned by Lease and Release when the pool declines
// a request. It is an ordinary value, not a fault: callers are expected to
// inspect Reason and tell the end user.
type Rejection struct {
	Reason Reason
	Kind   string
	Err    error
}

func (r *Rejection) Error() string {
	msg := string(r.Reason)
	if r.Kind != "" {
		msg += ": " + r.Kind
	}
	if r.Err != nil {
		msg += ": " + r.Err.Error()
	}
	return msg
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(reason Reason, kind string, err error) *Rejection {
	return &Rejection{Reason: reason, Kind: kind, Err: err}
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

func hasReason(err error, want Reason) bool {
	got, ok := ReasonOf(err)
	return ok && got == want
}

// IsCapacityExhausted reports whether err means every slot is leased.
func IsCapacityExhausted(err error) bool { return hasReason(err, ReasonCapacityExhausted) }

// IsUnknownEngine reports whether err means the kind is not configured.
func IsUnknownEngine(err error) bool { return hasReason(err, ReasonUnknownEngine) }

// IsSpawnFailed reports whether err means the engine process could not start.
func IsSpawnFailed(err error) bool { return hasReason(err, ReasonSpawnFailed) }

// IsNotLeased reports whether err means the instance was not (or no longer) leased.
func IsNotLeased(err error) bool { return hasReason(err, ReasonNotLeased) }

// UserMessage is a short, client-facing description of a rejection.
func UserMessage(err error) string {
	reason, ok := ReasonOf(err)
	if !ok {
		return "internal error"
	}
	switch reason {
	case ReasonCapacityExhausted:
		return "no engine available"
	case ReasonUnknownEngine:
		return "unknown engine"
	case ReasonSpawnFailed:
		return "engine failed to start"
	case ReasonNotLeased:
		return "engine not leased"
	default:
		return fmt.Sprintf("rejected: %s", reason)
	}
}
