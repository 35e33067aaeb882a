package sink

import (
	"github.com/rs/zerolog"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// LogSink writes one structured log line per outcome. It is the default when
// no database or broker is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) WriteBatch(outcomes []*domain.Outcome) error {
	for _, o := range outcomes {
		ev := l.log.Info()
		if o.Decision.Failed() {
			ev = l.log.Warn().Str("error", o.Decision.Error)
		}
		ev.Str("job_id", o.JobID).
			Str("verdict", o.Decision.Verdict()).
			Float64("probability", o.Decision.Probability).
			Float64("confidence", o.Decision.Confidence).
			Str("backend", o.Decision.BackendName).
			Int("num_threats", o.NumThreats).
			Msg("decision")
	}
	return nil
}

var _ ports.DecisionSink = (*LogSink)(nil)
