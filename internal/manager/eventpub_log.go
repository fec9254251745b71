package manager

import "github.com/rs/zerolog"

// LogPublisher writes lifecycle events to a structured log.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "backend_events").Logger()}
}

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Info()
	if e.Name == EventCrash || e.Name == EventFatal || e.Name == EventPullFailed {
		ev = p.log.Warn()
	}
	if e.Model != "" {
		ev = ev.Str("model", e.Model)
	}
	ev.Fields(e.Fields).Str("event", e.Name).Msg("backend event")
}
