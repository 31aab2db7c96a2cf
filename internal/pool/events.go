package pool

// Event represents a pool lifecycle event.
// Minimal and stable: name + engine kind and optional fields via key/values.
type Event struct {
	Name   string
	Kind   string
	Fields map[string]any
}

// Event names.
const (
	EventLease       = "lease"
	EventReject      = "reject"
	EventRelease     = "release"
	EventSpawnFailed = "spawn_failed"
)

// EventPublisher receives events from the pool. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
