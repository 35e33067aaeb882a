package features

import (
	"fmt"
	"math"

	"github.com/ghalamif/QShield/internal/domain"
)

const DefaultWidth = 4

// Scheme selects how a record set is folded into a fixed-width vector.
type Scheme string

const (
	// SchemeAggregate summarises the whole set: mean risk, max risk,
	// high-signal attack count and distinct country count.
	SchemeAggregate Scheme = "aggregate"
	// SchemeRecord concatenates [risk, threat, country, attack] per record and
	// keeps the first Width values.
	SchemeRecord Scheme = "record"
)

const (
	highSignalCeiling = 100
	countryCeiling    = 50
)

// Encoder maps record sets to feature vectors. It holds no mutable state.
type Encoder struct {
	width  int
	scheme Scheme
}

func NewEncoder(width int, scheme Scheme) (*Encoder, error) {
	if width <= 0 {
		return nil, fmt.Errorf("features: width must be positive, got %d", width)
	}
	switch scheme {
	case "":
		scheme = SchemeAggregate
	case SchemeAggregate, SchemeRecord:
	default:
		return nil, fmt.Errorf("features: unknown encoding scheme %q", scheme)
	}
	return &Encoder{width: width, scheme: scheme}, nil
}

// Default returns the 4-wide aggregate encoder.
func Default() *Encoder {
	return &Encoder{width: DefaultWidth, scheme: SchemeAggregate}
}

func (e *Encoder) Width() int     { return e.width }
func (e *Encoder) Scheme() Scheme { return e.scheme }

// Encode returns exactly Width values in [0, 1]. An empty record set encodes
// to all zeros.
func (e *Encoder) Encode(records []domain.ThreatRecord) []float64 {
	if len(records) == 0 {
		return make([]float64, e.width)
	}

	var values []float64
	switch e.scheme {
	case SchemeRecord:
		values = perRecordValues(records, e.width)
	default:
		values = aggregateValues(records)
	}
	return fit(values, e.width)
}

func aggregateValues(records []domain.ThreatRecord) []float64 {
	var (
		sum, peak  float64
		highSignal int
		countries  = make(map[string]struct{})
	)
	for i, r := range records {
		risk := float64(r.RiskScore)
		sum += risk
		if i == 0 || risk > peak {
			peak = risk
		}
		if IsHighSignalAttack(r.AttackType) {
			highSignal++
		}
		if c := normalizeCountry(r.Country); c != "" {
			countries[c] = struct{}{}
		}
	}

	mean := sum / float64(len(records))
	return []float64{
		clamp01(mean / 100),
		clamp01(peak / 100),
		float64(min(highSignal, highSignalCeiling)) / highSignalCeiling,
		float64(min(len(countries), countryCeiling)) / countryCeiling,
	}
}

func perRecordValues(records []domain.ThreatRecord, width int) []float64 {
	out := make([]float64, 0, width)
	for _, r := range records {
		if len(out) >= width {
			break
		}
		out = append(out,
			clamp01(float64(r.RiskScore)/100),
			EncodeThreatType(r.ThreatType),
			EncodeCountry(r.Country),
			EncodeAttackType(r.AttackType),
		)
	}
	return out
}

// fit pads with zeros or truncates to width.
func fit(values []float64, width int) []float64 {
	out := make([]float64, width)
	copy(out, values)
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
