package domain

type Gate string

const (
	GateH  Gate = "h"
	GateRX Gate = "rx"
	GateRY Gate = "ry"
	GateRZ Gate = "rz"
	GateCX Gate = "cx"
)

// Stage tags which half of the model emitted an op.
type Stage uint8

const (
	StageFeatureMap Stage = iota + 1
	StageVariational
)

// Op is one step of a TransformSpec. Control is -1 for single-qubit gates.
// For feature-map rotations Phase is 1 (first rotation) or 2 (after
// entangling); for variational ops it is the 1-based layer index.
type Op struct {
	Gate    Gate
	Control int
	Target  int
	Angle   float64
	Stage   Stage
	Phase   int
}

// TransformSpec is an ordered, executor-agnostic description of the circuit
// applied to Width qubits.
type TransformSpec struct {
	Width int
	Ops   []Op
}

func (s TransformSpec) Len() int { return len(s.Ops) }

// FeatureAngles returns, per qubit, the angle of the first feature-map
// rotation. Qubits without a feature rotation read 0.
func (s TransformSpec) FeatureAngles() []float64 {
	out := make([]float64, s.Width)
	for _, op := range s.Ops {
		if op.Stage == StageFeatureMap && op.Phase == 1 && op.Gate == GateRZ && op.Target >= 0 && op.Target < s.Width {
			out[op.Target] = op.Angle
		}
	}
	return out
}
