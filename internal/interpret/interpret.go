// Package interpret turns a measured histogram into a verdict.
//
// The decision bit is the first character of every label, which with
// most-significant-first labels is the highest-index qubit.
package interpret

import (
	"math"

	"github.com/ghalamif/QShield/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// DecisionBit is the label index read as the malicious flag.
const DecisionBit = 0

type Interpretation struct {
	Prediction  int
	Probability float64
	Confidence  float64
}

// Interpret reads the malicious probability off the decision bit, predicts 1
// when it reaches threshold, and attaches the dispersion confidence. An empty
// histogram yields the zero Interpretation.
func Interpret(h domain.OutcomeHistogram, threshold float64) Interpretation {
	if h.Total() <= 0 {
		return Interpretation{}
	}
	p := MaliciousProbability(h)
	out := Interpretation{Probability: p, Confidence: Confidence(h)}
	if p >= threshold {
		out.Prediction = 1
	}
	return out
}

// MaliciousProbability is the share of shots whose decision bit is '1'.
func MaliciousProbability(h domain.OutcomeHistogram) float64 {
	total := h.Total()
	if total <= 0 {
		return 0
	}
	ones := 0
	for label, c := range h {
		if len(label) > DecisionBit && label[DecisionBit] == '1' {
			ones += c
		}
	}
	return float64(ones) / float64(total)
}

// Confidence is a dispersion heuristic, not a calibrated interval:
// (1 - popstd(counts)/mean(counts)) * 100 over the labels present, clamped to
// [0, 100]. Evenly spread counts score high, a few dominant labels score low.
func Confidence(h domain.OutcomeHistogram) float64 {
	if len(h) == 0 {
		return 0
	}
	counts := make([]float64, 0, len(h))
	for _, c := range h {
		counts = append(counts, float64(c))
	}
	mean, std := stat.PopMeanStdDev(counts, nil)
	if mean <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, (1-std/mean)*100))
}
