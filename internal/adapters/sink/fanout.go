package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// Fanout writes every batch to all of its sinks. A failure in any sink fails
// the batch so the journal keeps it for replay; sinks must tolerate seeing a
// batch more than once.
type Fanout struct {
	sinks []ports.DecisionSink
}

func NewFanout(sinks ...ports.DecisionSink) *Fanout {
	out := make([]ports.DecisionSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *Fanout) WriteBatch(outcomes []*domain.Outcome) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.WriteBatch(outcomes); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Len() int { return len(f.sinks) }

var _ ports.DecisionSink = (*Fanout)(nil)
