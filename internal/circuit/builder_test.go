package circuit

import (
	"strings"
	"testing"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gates(spec domain.TransformSpec) []domain.Gate {
	out := make([]domain.Gate, len(spec.Ops))
	for i, op := range spec.Ops {
		out[i] = op.Gate
	}
	return out
}

func TestBuildFeatureMap_Layout(t *testing.T) {
	spec := BuildFeatureMap([]float64{0.1, 0.2, 0.3}, 3)
	require.Equal(t, 3, spec.Width)

	assert.Equal(t, []domain.Gate{
		domain.GateH, domain.GateH, domain.GateH,
		domain.GateRZ, domain.GateRZ, domain.GateRZ,
		domain.GateCX, domain.GateCX,
		domain.GateRY, domain.GateRY, domain.GateRY,
	}, gates(spec))

	assert.Equal(t, 0.2, spec.Ops[4].Angle)
	assert.Equal(t, 1, spec.Ops[4].Target)
	assert.Equal(t, 0, spec.Ops[6].Control)
	assert.Equal(t, 1, spec.Ops[6].Target)
	assert.Equal(t, 1, spec.Ops[7].Control)
	assert.Equal(t, 2, spec.Ops[7].Target)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, spec.FeatureAngles())
}

func TestBuildFeatureMap_FewerFeaturesThanWidth(t *testing.T) {
	spec := BuildFeatureMap([]float64{0.9}, 4)
	assert.Equal(t, 4+1+3+1, spec.Len())
	assert.Equal(t, []float64{0.9, 0, 0, 0}, spec.FeatureAngles())
}

func TestBuildFeatureMap_Deterministic(t *testing.T) {
	f := []float64{0.95, 0.95, 0.01, 0.02}
	assert.Equal(t, BuildFeatureMap(f, 4), BuildFeatureMap(f, 4))
}

func TestBuildVariational(t *testing.T) {
	p := model.Default()
	spec := BuildVariational(p)
	require.Equal(t, 4, spec.Width)

	rotations, entanglers := 0, 0
	for _, op := range spec.Ops {
		switch op.Gate {
		case domain.GateRX, domain.GateRZ:
			rotations++
		case domain.GateCX:
			entanglers++
		}
	}
	assert.Equal(t, p.NumCoefficients(), rotations)
	assert.Equal(t, p.LayerCount*p.QubitCount, entanglers)

	// layer 1: RX uses coefficients[0:4], RZ uses [4:8], ring closes 3 -> 0.
	assert.Equal(t, p.Coefficients[2], spec.Ops[2].Angle)
	assert.Equal(t, domain.GateRZ, spec.Ops[5].Gate)
	assert.Equal(t, p.Coefficients[5], spec.Ops[5].Angle)
	ring := spec.Ops[11]
	assert.Equal(t, domain.GateCX, ring.Gate)
	assert.Equal(t, 3, ring.Control)
	assert.Equal(t, 0, ring.Target)
	assert.Equal(t, 2, spec.Ops[12].Phase)
}

func TestBuildVariational_SingleQubitHasNoEntangler(t *testing.T) {
	p := &model.Parameters{
		QubitCount:   1,
		LayerCount:   3,
		Coefficients: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		FeatureMean:  []float64{0},
		FeatureScale: []float64{1},
		Threshold:    0.5,
	}
	spec := BuildVariational(p)
	assert.Equal(t, 6, spec.Len())
	for _, op := range spec.Ops {
		assert.NotEqual(t, domain.GateCX, op.Gate)
	}
}

func TestCompose(t *testing.T) {
	fm := BuildFeatureMap([]float64{0.5, 0.5, 0.5, 0.5}, 4)
	v := BuildVariational(model.Default())

	spec, err := Compose(fm, v)
	require.NoError(t, err)
	assert.Equal(t, fm.Len()+v.Len(), spec.Len())
	assert.Equal(t, fm.Ops, spec.Ops[:fm.Len()])

	_, err = Compose(BuildFeatureMap(nil, 3), v)
	assert.ErrorIs(t, err, domain.ErrWidthMismatch)
}

func TestQASM(t *testing.T) {
	spec := BuildFeatureMap([]float64{0.25, 1}, 2)
	out, err := QASM(spec)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"OPENQASM 2.0;",
		`include "qelib1.inc";`,
		"qreg q[2];",
		"creg c[2];",
		"h q[0];",
		"h q[1];",
		"rz(0.25) q[0];",
		"rz(1) q[1];",
		"cx q[0],q[1];",
		"ry(0.25) q[0];",
		"ry(1) q[1];",
		"measure q -> c;",
	}, lines)

	_, err = QASM(domain.TransformSpec{Width: 1, Ops: []domain.Op{{Gate: "swap"}}})
	assert.Error(t, err)
}
