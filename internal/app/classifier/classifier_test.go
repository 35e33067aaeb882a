package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/QShield/internal/adapters/executor"
	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/model"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func clock() time.Time { return fixedNow }

type stubExecutor struct {
	counts domain.OutcomeHistogram
	err    error
	panics bool
}

func (s *stubExecutor) Run(_ context.Context, _ domain.TransformSpec, shots int) (ports.Execution, error) {
	if s.panics {
		panic("index out of range")
	}
	if s.err != nil {
		return ports.Execution{}, s.err
	}
	return ports.Execution{Counts: s.counts, Backend: "stub-device"}, nil
}

func (s *stubExecutor) Name() string { return "stub" }

func newSimulatedClassifier(t *testing.T, opts ...Option) *Classifier {
	t.Helper()
	sim, err := executor.NewSimulated(executor.ModeExpected, zerolog.Nop())
	require.NoError(t, err)
	c, err := New(model.Default(), sim, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClassify_EmptyRecordSetIsBenign(t *testing.T) {
	c := newSimulatedClassifier(t)

	d := c.Classify(context.Background(), nil)
	assert.Empty(t, d.Error)
	assert.Equal(t, 0, d.Prediction)
	assert.Equal(t, 0.0, d.Probability)
	assert.False(t, d.IsMalicious)
	assert.Equal(t, 1024, d.RawHistogram.Total())
	assert.Equal(t, executor.SimulatedBackendName, d.BackendName)
	assert.Equal(t, "2026-03-14T09:26:53Z", d.Timestamp)
}

func TestClassify_HighRiskRecordIsMalicious(t *testing.T) {
	c := newSimulatedClassifier(t)

	d := c.Classify(context.Background(), []domain.ThreatRecord{
		{IPAddress: "203.0.113.9", ThreatType: "ddos", RiskScore: 95, Country: "CN", AttackType: "ddos"},
	})
	require.Empty(t, d.Error)
	assert.Equal(t, 1, d.Prediction)
	assert.True(t, d.IsMalicious)
	assert.GreaterOrEqual(t, d.Probability, 0.5)
	assert.InDelta(t, 733.0/1024, d.Probability, 1e-9)
	assert.Equal(t, 0.5, d.Threshold)
	assert.GreaterOrEqual(t, d.Confidence, 0.0)
	assert.LessOrEqual(t, d.Confidence, 100.0)
}

func TestClassifyPayload_MissingRiskScore(t *testing.T) {
	c := newSimulatedClassifier(t)

	d := c.ClassifyPayload(context.Background(), []byte(`{"threats":[{"ip_address":"1.2.3.4","threat_type":"x"}]}`))
	assert.True(t, d.Failed())
	assert.Contains(t, d.Error, "risk_score")
	assert.Equal(t, 0, d.Prediction)
	assert.Equal(t, 0.0, d.Probability)
	assert.Equal(t, 0.0, d.Confidence)
	assert.False(t, d.IsMalicious)
	assert.NotNil(t, d.RawHistogram)
}

func TestClassifyPayload_Valid(t *testing.T) {
	c := newSimulatedClassifier(t)

	ev := c.EvaluatePayload(context.Background(), []byte(`{"threats":[
		{"ip":"10.1.1.1","threat_type":"phishing","risk_score":30,"country":"BR"},
		{"ip":"10.1.1.2","threat_type":"malware","risk_score":50,"attack_type":"brute_force"}
	]}`))
	require.Empty(t, ev.Decision.Error)
	assert.Equal(t, 2, ev.NumThreats)
	assert.InDeltaSlice(t, []float64{0.4, 0.5, 0.01, 0.02}, ev.Features, 1e-12)
}

func TestClassify_TypedValidation(t *testing.T) {
	c := newSimulatedClassifier(t)
	d := c.Classify(context.Background(), []domain.ThreatRecord{{ThreatType: "ddos", RiskScore: 10}})
	assert.True(t, d.Failed())
	assert.Contains(t, d.Error, domain.ErrInvalidInput.Error())
}

func TestClassify_ExecutorErrorIsErrorShaped(t *testing.T) {
	c, err := New(model.Default(), &stubExecutor{err: errors.New("device calibration failed")}, WithClock(clock))
	require.NoError(t, err)

	d := c.Classify(context.Background(), nil)
	assert.True(t, d.Failed())
	assert.Contains(t, d.Error, "calibration")
	assert.Equal(t, "stub", d.BackendName)
	assert.Equal(t, 0.5, d.Threshold)
}

func TestClassify_RecoversFromPanic(t *testing.T) {
	c, err := New(model.Default(), &stubExecutor{panics: true}, WithClock(clock))
	require.NoError(t, err)

	var d domain.DecisionRecord
	assert.NotPanics(t, func() { d = c.Classify(context.Background(), nil) })
	assert.True(t, d.Failed())
	assert.Contains(t, d.Error, "panic")
}

func TestClassify_ThresholdBoundaryPredictsMalicious(t *testing.T) {
	c, err := New(model.Default(), &stubExecutor{counts: domain.OutcomeHistogram{"1000": 512, "0000": 512}}, WithClock(clock))
	require.NoError(t, err)

	d := c.Classify(context.Background(), nil)
	assert.Equal(t, 0.5, d.Probability)
	assert.Equal(t, 1, d.Prediction)
	assert.Equal(t, "stub-device", d.BackendName)
}

func TestClassify_FallsBackWhenRemoteIsDown(t *testing.T) {
	sim, err := executor.NewSimulated(executor.ModeExpected, zerolog.Nop())
	require.NoError(t, err)
	fb := executor.NewFallback(&stubExecutor{err: domain.ErrBackendUnavailable}, sim, nopObs{})

	c, err := New(model.Default(), fb, WithClock(clock))
	require.NoError(t, err)

	d := c.Classify(context.Background(), []domain.ThreatRecord{{IPAddress: "1.1.1.1", ThreatType: "ddos", RiskScore: 95}})
	require.Empty(t, d.Error)
	assert.Equal(t, executor.SimulatedBackendName, d.BackendName)
	assert.Equal(t, 1024, d.RawHistogram.Total())
}

func TestNew_Rejects(t *testing.T) {
	sim, err := executor.NewSimulated(executor.ModeExpected, zerolog.Nop())
	require.NoError(t, err)

	p := model.Default().Clone()
	p.FeatureScale[1] = 0
	_, err = New(p, sim)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)

	_, err = New(nil, sim)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)

	_, err = New(model.Default(), nil)
	assert.Error(t, err)

	_, err = New(model.Default(), sim, WithShots(0))
	assert.ErrorIs(t, err, domain.ErrInvalidShots)
}

func wideParameters(qubits int) *model.Parameters {
	scale := make([]float64, qubits)
	for i := range scale {
		scale[i] = 1
	}
	return &model.Parameters{
		QubitCount:   qubits,
		LayerCount:   1,
		Coefficients: make([]float64, 2*qubits),
		FeatureMean:  make([]float64, qubits),
		FeatureScale: scale,
		Threshold:    0.5,
	}
}

func TestNew_RejectsModelWiderThanSimulator(t *testing.T) {
	sim, err := executor.NewSimulated(executor.ModeExpected, zerolog.Nop())
	require.NoError(t, err)

	wide := wideParameters(executor.MaxSimulatedQubits + 1)
	require.NoError(t, wide.Validate())

	_, err = New(wide, sim)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)

	fb := executor.NewFallback(&stubExecutor{}, sim, nopObs{})
	_, err = New(wide, fb)
	assert.ErrorIs(t, err, domain.ErrInvalidModel)

	_, err = New(wideParameters(executor.MaxSimulatedQubits), sim)
	assert.NoError(t, err)

	// Executors without a width limit accept any valid shape.
	_, err = New(wide, &stubExecutor{})
	assert.NoError(t, err)
}

func TestClassify_ParametersAreNotShared(t *testing.T) {
	p := model.Default().Clone()
	c, err := New(p, &stubExecutor{counts: domain.OutcomeHistogram{"0000": 1}})
	require.NoError(t, err)

	p.Threshold = 0.9
	assert.Equal(t, 0.5, c.Threshold())
}

func TestClassify_ConcurrentCallsAgree(t *testing.T) {
	c := newSimulatedClassifier(t)
	records := []domain.ThreatRecord{{IPAddress: "1.1.1.1", ThreatType: "ddos", RiskScore: 80, Country: "RU", AttackType: "brute force"}}
	want := c.Classify(context.Background(), records)

	var wg sync.WaitGroup
	results := make([]domain.DecisionRecord, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Classify(context.Background(), records)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestClassifyJob(t *testing.T) {
	c := newSimulatedClassifier(t)
	job := &domain.Job{ID: "job-1", Source: "http", Payload: []byte(`{"threats":[{"ip":"1.1.1.1","threat_type":"xss","risk_score":10}]}`)}

	out := c.ClassifyJob(context.Background(), job)
	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, "http", out.Source)
	assert.Equal(t, 1, out.NumThreats)
	assert.Len(t, out.FeaturesUsed, 4)
	assert.Equal(t, fixedNow, out.CompletedAt)
	assert.Empty(t, out.Decision.Error)

	bad := c.ClassifyJob(context.Background(), &domain.Job{ID: "job-2", Payload: []byte(`{}`)})
	assert.True(t, bad.Decision.Failed())
}
