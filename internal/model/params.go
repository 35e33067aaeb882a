package model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ghalamif/QShield/internal/domain"
)

const (
	DefaultQubits    = 4
	DefaultLayers    = 2
	DefaultThreshold = 0.5

	// MaxQubits and MaxLayers bound a bundle's shape so the coefficient
	// count cannot overflow and no allocation is sized from untrusted input.
	MaxQubits = 64
	MaxLayers = 1 << 16

	// defaultSeed fixes the coefficients of the default bundle so every
	// process starts from the same untrained model.
	defaultSeed = 0x5153_4849_454c_44
)

// Parameters is the trained model bundle. A loaded value is treated as
// read-only; callers that need to modify one work on a Clone.
type Parameters struct {
	QubitCount   int
	LayerCount   int
	Coefficients []float64
	FeatureMean  []float64
	FeatureScale []float64
	Threshold    float64
}

// Default returns the untrained bundle: 4 qubits, 2 layers, coefficients drawn
// uniformly from [0, 2π) with a fixed seed, identity scaling and threshold 0.5.
func Default() *Parameters {
	rng := rand.New(rand.NewPCG(defaultSeed, defaultSeed>>7))
	coeffs := make([]float64, DefaultLayers*2*DefaultQubits)
	for i := range coeffs {
		coeffs[i] = rng.Float64() * 2 * math.Pi
	}
	return &Parameters{
		QubitCount:   DefaultQubits,
		LayerCount:   DefaultLayers,
		Coefficients: coeffs,
		FeatureMean:  make([]float64, DefaultQubits),
		FeatureScale: ones(DefaultQubits),
		Threshold:    DefaultThreshold,
	}
}

// NumCoefficients is the coefficient count implied by the shape.
func (p *Parameters) NumCoefficients() int {
	return p.LayerCount * 2 * p.QubitCount
}

// Layer returns the 2*QubitCount coefficients of layer i: RX angles first,
// RZ angles second. The slice aliases the bundle and must not be written.
func (p *Parameters) Layer(i int) []float64 {
	n := 2 * p.QubitCount
	return p.Coefficients[i*n : (i+1)*n : (i+1)*n]
}

// checkShape bounds the qubit and layer counts. It must pass before
// NumCoefficients or Layer is used.
func (p *Parameters) checkShape() error {
	switch {
	case p.QubitCount <= 0 || p.QubitCount > MaxQubits:
		return fmt.Errorf("%w: num_qubits must be in 1..%d, got %d", domain.ErrInvalidModel, MaxQubits, p.QubitCount)
	case p.LayerCount <= 0 || p.LayerCount > MaxLayers:
		return fmt.Errorf("%w: num_layers must be in 1..%d, got %d", domain.ErrInvalidModel, MaxLayers, p.LayerCount)
	}
	return nil
}

// Validate checks the dimensional and range invariants.
func (p *Parameters) Validate() error {
	if err := p.checkShape(); err != nil {
		return err
	}
	switch {
	case len(p.Coefficients) != p.NumCoefficients():
		return fmt.Errorf("%w: expected %d parameters for %d layers x %d qubits, got %d",
			domain.ErrInvalidModel, p.NumCoefficients(), p.LayerCount, p.QubitCount, len(p.Coefficients))
	case len(p.FeatureMean) != p.QubitCount:
		return fmt.Errorf("%w: feature_scaler.mean has %d values, want %d", domain.ErrInvalidModel, len(p.FeatureMean), p.QubitCount)
	case len(p.FeatureScale) != p.QubitCount:
		return fmt.Errorf("%w: feature_scaler.scale has %d values, want %d", domain.ErrInvalidModel, len(p.FeatureScale), p.QubitCount)
	case math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1:
		return fmt.Errorf("%w: threshold %v outside [0, 1]", domain.ErrInvalidModel, p.Threshold)
	}

	for i, c := range p.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: parameters[%d] is not finite", domain.ErrInvalidModel, i)
		}
	}
	for i, m := range p.FeatureMean {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: feature_scaler.mean[%d] is not finite", domain.ErrInvalidModel, i)
		}
	}
	for i, s := range p.FeatureScale {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: feature_scaler.scale[%d] must be a positive finite number, got %v", domain.ErrInvalidModel, i, s)
		}
	}
	return nil
}

// Scale standardises a feature vector: (f - mean) / scale, after padding with
// zeros or truncating to QubitCount.
func (p *Parameters) Scale(features []float64) []float64 {
	out := make([]float64, p.QubitCount)
	copy(out, features)
	for i := range out {
		out[i] = (out[i] - p.FeatureMean[i]) / p.FeatureScale[i]
	}
	return out
}

func (p *Parameters) Clone() *Parameters {
	c := *p
	c.Coefficients = slices.Clone(p.Coefficients)
	c.FeatureMean = slices.Clone(p.FeatureMean)
	c.FeatureScale = slices.Clone(p.FeatureScale)
	return &c
}

// Equal reports whether two bundles hold identical values.
func (p *Parameters) Equal(o *Parameters) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.QubitCount == o.QubitCount &&
		p.LayerCount == o.LayerCount &&
		p.Threshold == o.Threshold &&
		slices.Equal(p.Coefficients, o.Coefficients) &&
		slices.Equal(p.FeatureMean, o.FeatureMean) &&
		slices.Equal(p.FeatureScale, o.FeatureScale)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
