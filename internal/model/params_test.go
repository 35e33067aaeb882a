package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data   []byte
	getErr error
}

func (m *memStore) Get(context.Context) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.data == nil {
		return nil, ports.ErrParamsNotFound
	}
	return m.data, nil
}

func (m *memStore) Put(_ context.Context, data []byte) error {
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Name() string { return "memory" }

func TestDefault(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, 4, p.QubitCount)
	assert.Equal(t, 2, p.LayerCount)
	assert.Len(t, p.Coefficients, 16)
	assert.Equal(t, 0.5, p.Threshold)
	for _, c := range p.Coefficients {
		assert.GreaterOrEqual(t, c, 0.0)
		assert.Less(t, c, 2*math.Pi)
	}
	assert.True(t, p.Equal(Default()), "default bundle must be reproducible")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(p *Parameters){
		"zero qubits":         func(p *Parameters) { p.QubitCount = 0 },
		"zero layers":         func(p *Parameters) { p.LayerCount = 0 },
		"short coefficients":  func(p *Parameters) { p.Coefficients = p.Coefficients[:15] },
		"mean width":          func(p *Parameters) { p.FeatureMean = []float64{0} },
		"scale width":         func(p *Parameters) { p.FeatureScale = []float64{1, 1, 1} },
		"zero scale":          func(p *Parameters) { p.FeatureScale[2] = 0 },
		"negative scale":      func(p *Parameters) { p.FeatureScale[0] = -1 },
		"threshold above one": func(p *Parameters) { p.Threshold = 1.5 },
		"threshold NaN":       func(p *Parameters) { p.Threshold = math.NaN() },
		"NaN coefficient":     func(p *Parameters) { p.Coefficients[3] = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := Default().Clone()
			mutate(p)
			assert.ErrorIs(t, p.Validate(), domain.ErrInvalidModel)
		})
	}
}

func TestScale(t *testing.T) {
	p := Default()
	p.FeatureMean = []float64{0.5, 0, 0, 0}
	p.FeatureScale = []float64{0.25, 1, 2, 1}

	got := p.Scale([]float64{1, 0.5, 1})
	assert.Equal(t, []float64{2, 0.5, 0.5, 0}, got)

	got = p.Scale([]float64{0.5, 0, 0, 0, 9, 9})
	assert.Len(t, got, 4)
}

func TestLayer(t *testing.T) {
	p := Default()
	assert.Equal(t, p.Coefficients[:8], p.Layer(0))
	assert.Equal(t, p.Coefficients[8:], p.Layer(1))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}

	p := Default().Clone()
	p.Coefficients[0] = 0.1 + 0.2
	p.FeatureMean = []float64{0.3, 0.1, 1e-9, 0}
	p.FeatureScale = []float64{0.7, 1.1, 2, 1.0 / 3}
	p.Threshold = 0.65

	require.NoError(t, Save(ctx, store, p))
	loaded, err := Load(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, p.Equal(loaded))
}

func TestLoad_MissingFallsBackToDefault(t *testing.T) {
	p, err := Load(context.Background(), &memStore{}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, p.Equal(Default()))
}

func TestLoad_StoreFailure(t *testing.T) {
	_, err := Load(context.Background(), &memStore{getErr: errors.New("connection refused")}, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrModelLoad)
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{`{`, `{"num_qubits": "four"}`, `{"parameters": [1, "x"]}`, `[]`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, domain.ErrModelLoad, raw)
	}
}

func TestDecode_DimensionMismatch(t *testing.T) {
	cases := map[string]string{
		// 3 qubits, 1 layer needs 6 coefficients.
		"short parameters":  `{"num_qubits": 3, "num_layers": 1, "parameters": [0.1, 0.2, 0.3, 0.4, 0.5], "threshold": 0.5}`,
		"layer count wraps": `{"num_qubits": 2, "num_layers": 4611686018427387904, "parameters": []}`,
		"huge qubit count":  `{"num_qubits": 2305843009213693952, "num_layers": 1, "parameters": []}`,
		"negative qubits":   `{"num_qubits": -4, "num_layers": 1, "parameters": []}`,
		"too many layers":   `{"num_qubits": 1, "num_layers": 70000, "parameters": []}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = Decode([]byte(raw)) })
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidModel)
			assert.ErrorIs(t, err, domain.ErrModelLoad)
		})
	}
}

func TestValidate_ShapeBounds(t *testing.T) {
	p := Default()
	p.LayerCount = 1 << 62
	p.QubitCount = 2
	p.Coefficients = nil
	assert.ErrorIs(t, p.Validate(), domain.ErrInvalidModel)

	p = Default()
	p.QubitCount = MaxQubits + 1
	assert.ErrorIs(t, p.Validate(), domain.ErrInvalidModel)
}

func TestDecode_ZeroScaleRejected(t *testing.T) {
	raw := `{"num_qubits": 1, "num_layers": 1, "parameters": [0.1, 0.2],
		"feature_scaler": {"mean": [0], "scale": [0]}, "threshold": 0.5}`
	_, err := Decode([]byte(raw))
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
}

func TestDecode_MissingFieldsUseDefaults(t *testing.T) {
	raw := `{"parameters": [0,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15]}`
	p, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 4, p.QubitCount)
	assert.Equal(t, 2, p.LayerCount)
	assert.Equal(t, 0.5, p.Threshold)
	assert.Equal(t, []float64{0, 0, 0, 0}, p.FeatureMean)
	assert.Equal(t, []float64{1, 1, 1, 1}, p.FeatureScale)
}
