package manager

// Event represents a backend lifecycle event.
// Minimal and stable: name + model and optional fields via key/values.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// Lifecycle event names.
const (
	EventLaunch     = "launch"
	EventReady      = "ready"
	EventPullStart  = "pull_start"
	EventPullDone   = "pull_done"
	EventPullFailed = "pull_failed"
	EventCrash      = "crash"
	EventRestart    = "restart"
	EventDegraded   = "degraded"
	EventFatal      = "fatal"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
