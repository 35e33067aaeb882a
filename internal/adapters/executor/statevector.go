package executor

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/ghalamif/QShield/internal/domain"
)

// MaxSimulatedQubits bounds the state vector at 2^20 amplitudes.
const MaxSimulatedQubits = 20

// stateVector holds 2^n amplitudes. Basis index bit q is qubit q, so the
// printed label of index k (most significant bit first) starts with qubit n-1.
type stateVector []complex128

type gate2x2 [2][2]complex128

func newStateVector(qubits int) stateVector {
	v := make(stateVector, 1<<qubits)
	v[0] = 1
	return v
}

func (v stateVector) apply(op domain.Op) error {
	switch op.Gate {
	case domain.GateH:
		h := complex(1/math.Sqrt2, 0)
		v.applySingle(op.Target, gate2x2{{h, h}, {h, -h}})
	case domain.GateRX:
		c, s := halfAngle(op.Angle)
		v.applySingle(op.Target, gate2x2{{complex(c, 0), complex(0, -s)}, {complex(0, -s), complex(c, 0)}})
	case domain.GateRY:
		c, s := halfAngle(op.Angle)
		v.applySingle(op.Target, gate2x2{{complex(c, 0), complex(-s, 0)}, {complex(s, 0), complex(c, 0)}})
	case domain.GateRZ:
		v.applySingle(op.Target, gate2x2{
			{cmplx.Exp(complex(0, -op.Angle/2)), 0},
			{0, cmplx.Exp(complex(0, op.Angle/2))},
		})
	case domain.GateCX:
		v.applyCX(op.Control, op.Target)
	default:
		return fmt.Errorf("simulator: unsupported gate %q", op.Gate)
	}
	return nil
}

func (v stateVector) applySingle(target int, m gate2x2) {
	bit := 1 << target
	for i := range v {
		if i&bit != 0 {
			continue
		}
		j := i | bit
		a0, a1 := v[i], v[j]
		v[i] = m[0][0]*a0 + m[0][1]*a1
		v[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

func (v stateVector) applyCX(control, target int) {
	cbit, tbit := 1<<control, 1<<target
	for i := range v {
		if i&cbit != 0 && i&tbit == 0 {
			j := i | tbit
			v[i], v[j] = v[j], v[i]
		}
	}
}

// probabilities returns the Born-rule weight of each basis index.
func (v stateVector) probabilities() []float64 {
	out := make([]float64, len(v))
	for i, a := range v {
		out[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return out
}

func halfAngle(theta float64) (cos, sin float64) {
	sin, cos = math.Sincos(theta / 2)
	return cos, sin
}

func basisLabel(index, width int) string {
	return fmt.Sprintf("%0*b", width, index)
}

func checkOps(spec domain.TransformSpec) error {
	for i, op := range spec.Ops {
		if op.Target < 0 || op.Target >= spec.Width {
			return fmt.Errorf("simulator: op %d targets qubit %d of %d", i, op.Target, spec.Width)
		}
		if op.Gate == domain.GateCX && (op.Control < 0 || op.Control >= spec.Width || op.Control == op.Target) {
			return fmt.Errorf("simulator: op %d has invalid control %d", i, op.Control)
		}
	}
	return nil
}
