package executor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const SimulatedBackendName = "local_simulator"

// SimulationMode selects how shots are allocated across basis states.
type SimulationMode string

const (
	// ModeExpected allocates shots deterministically by largest remainder.
	ModeExpected SimulationMode = "expected"
	// ModeSampled draws every shot from the distribution.
	ModeSampled SimulationMode = "sampled"
)

// Simulated is the local executor used when no remote backend is configured
// or reachable.
//
// The decision-bit marginal is pinned to the risk signal carried by the
// feature-map rotation angles (RiskSignal), so the malicious share grows
// monotonically with every encoded feature. The state-vector simulation of the
// full transform decides how shots are spread over the labels inside each
// half (decision bit 0 and decision bit 1).
type Simulated struct {
	mode SimulationMode
	log  zerolog.Logger
}

var (
	_ ports.Executor     = (*Simulated)(nil)
	_ ports.WidthLimited = (*Simulated)(nil)
)

func NewSimulated(mode SimulationMode, log zerolog.Logger) (*Simulated, error) {
	switch mode {
	case "":
		mode = ModeExpected
	case ModeExpected, ModeSampled:
	default:
		return nil, fmt.Errorf("simulator: unknown mode %q", mode)
	}
	return &Simulated{mode: mode, log: log}, nil
}

func (s *Simulated) Name() string { return SimulatedBackendName }

func (s *Simulated) Mode() SimulationMode { return s.mode }

func (s *Simulated) MaxWidth() int { return MaxSimulatedQubits }

func (s *Simulated) Run(ctx context.Context, spec domain.TransformSpec, shots int) (ports.Execution, error) {
	if shots <= 0 {
		return ports.Execution{}, fmt.Errorf("%w: got %d", domain.ErrInvalidShots, shots)
	}
	if spec.Width <= 0 || spec.Width > MaxSimulatedQubits {
		return ports.Execution{}, fmt.Errorf("simulator: width %d outside 1..%d", spec.Width, MaxSimulatedQubits)
	}
	if err := checkOps(spec); err != nil {
		return ports.Execution{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.Execution{}, err
	}

	sv := newStateVector(spec.Width)
	for _, op := range spec.Ops {
		if err := sv.apply(op); err != nil {
			return ports.Execution{}, err
		}
	}
	probs := sv.probabilities()

	risk := RiskSignal(spec.FeatureAngles())
	malicious := int(math.Round(risk * float64(shots)))
	half := len(probs) / 2

	counts := make(domain.OutcomeHistogram)
	s.spread(counts, probs[:half], 0, shots-malicious, spec.Width)
	s.spread(counts, probs[half:], half, malicious, spec.Width)

	s.log.Debug().
		Int("width", spec.Width).
		Int("ops", spec.Len()).
		Int("shots", shots).
		Float64("risk_signal", risk).
		Str("mode", string(s.mode)).
		Msg("simulated execution")

	return ports.Execution{Counts: counts, Backend: s.Name()}, nil
}

// RiskSignal folds feature angles into [0, 1]: half the largest clamped angle
// plus half the mean clamped angle. It is non-decreasing in every component.
func RiskSignal(angles []float64) float64 {
	if len(angles) == 0 {
		return 0
	}
	clamped := make([]float64, len(angles))
	for i, a := range angles {
		clamped[i] = math.Max(0, math.Min(1, a))
		if math.IsNaN(a) {
			clamped[i] = 0
		}
	}
	return 0.5*floats.Max(clamped) + 0.5*floats.Sum(clamped)/float64(len(clamped))
}

// spread assigns n shots to the labels offset..offset+len(weights)-1. A half
// with no amplitude mass is spread uniformly.
func (s *Simulated) spread(counts domain.OutcomeHistogram, weights []float64, offset, n, width int) {
	if n <= 0 {
		return
	}
	w := weights
	if floats.Sum(w) <= 1e-12 {
		w = make([]float64, len(weights))
		for i := range w {
			w[i] = 1
		}
	}

	var alloc []int
	if s.mode == ModeSampled {
		alloc = sampleAllocation(w, n)
	} else {
		alloc = largestRemainder(w, n)
	}
	for i, c := range alloc {
		if c > 0 {
			counts[basisLabel(offset+i, width)] += c
		}
	}
}

// largestRemainder splits n proportionally to w with integer counts summing
// to n. Ties go to the lower index.
func largestRemainder(w []float64, n int) []int {
	total := floats.Sum(w)
	out := make([]int, len(w))
	rem := make([]float64, len(w))
	assigned := 0
	for i, x := range w {
		quota := x / total * float64(n)
		out[i] = int(math.Floor(quota))
		rem[i] = quota - float64(out[i])
		assigned += out[i]
	}

	order := make([]int, len(w))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })

	for k := 0; assigned < n; k = (k + 1) % len(order) {
		out[order[k]]++
		assigned++
	}
	return out
}

func sampleAllocation(w []float64, n int) []int {
	cat := distuv.NewCategorical(w, nil)
	out := make([]int, len(w))
	for i := 0; i < n; i++ {
		out[int(cat.Rand())]++
	}
	return out
}
