package qshield

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/QShield/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("qshield: channel sink closed")

// OutcomeBatchSink is invoked with ordered batches of classified jobs.
type OutcomeBatchSink func([]Outcome) error

// NewCallbackSink adapts an OutcomeBatchSink into a DecisionSink so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn OutcomeBatchSink) DecisionSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (DecisionSink, <-chan []Outcome, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Outcome, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   OutcomeBatchSink
}

func (s *callbackSink) WriteBatch(outcomes []*domain.Outcome) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(outcomes) == 0 {
		return nil
	}
	return s.fn(copyBatch(outcomes))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Outcome
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WriteBatch(outcomes []*domain.Outcome) error {
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(outcomes) == 0 {
		return nil
	}

	batch := copyBatch(outcomes)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

// copyBatch detaches outcomes from pipeline-owned memory.
func copyBatch(outcomes []*domain.Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		c := *o
		c.FeaturesUsed = append([]float64(nil), o.FeaturesUsed...)
		c.Decision.RawHistogram = o.Decision.RawHistogram.Clone()
		out = append(out, c)
	}
	return out
}
