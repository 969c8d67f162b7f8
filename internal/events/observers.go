package events

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/WencesJ/Speer-Tweeter/internal/metrics"
)

// LogObserver writes every event to the global zerolog logger.
type LogObserver struct {
	Level zerolog.Level
}

// NewLogObserver logs events at info level.
func NewLogObserver() *LogObserver {
	return &LogObserver{Level: zerolog.InfoLevel}
}

func (o *LogObserver) Observe(e Event) {
	ev := log.WithLevel(o.Level).
		Str("entity", string(e.Entity)).
		Str("kind", string(e.Kind)).
		Str("id", e.ID).
		Time("at", e.At)
	if e.ActorID != "" {
		ev = ev.Str("actor_id", e.ActorID)
	}
	if e.Detail != "" {
		ev = ev.Str("detail", e.Detail)
	}
	ev.Msg("Lifecycle event")
}

// MetricsObserver counts events in Prometheus.
type MetricsObserver struct{}

func (MetricsObserver) Observe(e Event) {
	metrics.RecordEvent(string(e.Entity), string(e.Kind))
}
