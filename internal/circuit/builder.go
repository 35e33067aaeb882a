// Package circuit builds the feature-map and variational transforms of the
// classifier as plain data. Nothing here executes a circuit.
package circuit

import (
	"fmt"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/model"
)

// BuildFeatureMap encodes features onto width qubits: H on every qubit, RZ(f)
// per feature, a CX chain in index order, then RY(f) per feature. Features
// beyond width are ignored; qubits beyond the feature count get no rotation.
func BuildFeatureMap(features []float64, width int) domain.TransformSpec {
	if width <= 0 {
		return domain.TransformSpec{}
	}
	n := min(len(features), width)
	ops := make([]domain.Op, 0, width+2*n+width-1)

	for q := 0; q < width; q++ {
		ops = append(ops, single(domain.GateH, q, 0, domain.StageFeatureMap, 0))
	}
	for q := 0; q < n; q++ {
		ops = append(ops, single(domain.GateRZ, q, features[q], domain.StageFeatureMap, 1))
	}
	for q := 0; q < width-1; q++ {
		ops = append(ops, cx(q, q+1, domain.StageFeatureMap, 0))
	}
	for q := 0; q < n; q++ {
		ops = append(ops, single(domain.GateRY, q, features[q], domain.StageFeatureMap, 2))
	}
	return domain.TransformSpec{Width: width, Ops: ops}
}

// BuildVariational lays out every layer of p: an RX sweep over the first half
// of the layer's coefficients, an RZ sweep over the second half, then a CX
// ring. A single-qubit model has no entangling step.
func BuildVariational(p *model.Parameters) domain.TransformSpec {
	width := p.QubitCount
	ops := make([]domain.Op, 0, p.LayerCount*3*width)

	for layer := 0; layer < p.LayerCount; layer++ {
		coeffs := p.Layer(layer)
		phase := layer + 1
		for q := 0; q < width; q++ {
			ops = append(ops, single(domain.GateRX, q, coeffs[q], domain.StageVariational, phase))
		}
		for q := 0; q < width; q++ {
			ops = append(ops, single(domain.GateRZ, q, coeffs[width+q], domain.StageVariational, phase))
		}
		if width > 1 {
			for q := 0; q < width-1; q++ {
				ops = append(ops, cx(q, q+1, domain.StageVariational, phase))
			}
			ops = append(ops, cx(width-1, 0, domain.StageVariational, phase))
		}
	}
	return domain.TransformSpec{Width: width, Ops: ops}
}

// Compose returns a followed by b.
func Compose(a, b domain.TransformSpec) (domain.TransformSpec, error) {
	if a.Width != b.Width {
		return domain.TransformSpec{}, fmt.Errorf("%w: %d vs %d", domain.ErrWidthMismatch, a.Width, b.Width)
	}
	ops := make([]domain.Op, 0, len(a.Ops)+len(b.Ops))
	ops = append(ops, a.Ops...)
	ops = append(ops, b.Ops...)
	return domain.TransformSpec{Width: a.Width, Ops: ops}, nil
}

func single(g domain.Gate, target int, angle float64, stage domain.Stage, phase int) domain.Op {
	return domain.Op{Gate: g, Control: -1, Target: target, Angle: angle, Stage: stage, Phase: phase}
}

func cx(control, target int, stage domain.Stage, phase int) domain.Op {
	return domain.Op{Gate: domain.GateCX, Control: control, Target: target, Stage: stage, Phase: phase}
}
