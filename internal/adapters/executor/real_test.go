package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	targets  []Target
	counts   func(shots int) domain.OutcomeHistogram
	jobs     []submitRequest
	jobDelay time.Duration
	mu       sync.Mutex
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/backends", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(targetList{Backends: f.targets})
	})
	mux.HandleFunc("POST /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f.jobDelay > 0 {
			select {
			case <-time.After(f.jobDelay):
			case <-r.Context().Done():
				return
			}
		}
		f.mu.Lock()
		f.jobs = append(f.jobs, req)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(submitResponse{ID: req.ID, Backend: req.Backend, Status: "completed", Counts: f.counts(req.Shots)})
	})
	return mux
}

func splitCounts(shots int) domain.OutcomeHistogram {
	return domain.OutcomeHistogram{"1000": shots / 4, "0000": shots - shots/4}
}

func newReal(t *testing.T, url string, mutate ...func(*RealConfig)) *Real {
	t.Helper()
	cfg := RealConfig{Endpoint: url, Timeout: 2 * time.Second, Backoff: time.Millisecond}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := NewReal(cfg, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestSelectLeastBusy(t *testing.T) {
	targets := []Target{
		{Name: "busy", PendingJobs: 40, Operational: true},
		{Name: "offline", PendingJobs: 0, Operational: false},
		{Name: "small", PendingJobs: 1, Operational: true, NumQubits: 2},
		{Name: "quiet", PendingJobs: 3, Operational: true, NumQubits: 27},
		{Name: "quiet-too", PendingJobs: 3, Operational: true},
	}
	got, ok := SelectLeastBusy(targets, 4)
	require.True(t, ok)
	assert.Equal(t, "quiet", got.Name)

	_, ok = SelectLeastBusy(targets[1:2], 4)
	assert.False(t, ok)
}

func TestReal_SubmitsToLeastBusyTarget(t *testing.T) {
	svc := &fakeService{
		targets: []Target{{Name: "a", PendingJobs: 9, Operational: true}, {Name: "b", PendingJobs: 2, Operational: true}},
		counts:  splitCounts,
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	exec, err := newReal(t, srv.URL).Run(context.Background(), classifierSpec(t, []float64{0.5, 0.5, 0.5, 0.5}), 1024)
	require.NoError(t, err)
	assert.Equal(t, "b", exec.Backend)
	assert.Equal(t, 1024, exec.Counts.Total())

	require.Len(t, svc.jobs, 1)
	assert.Equal(t, "b", svc.jobs[0].Backend)
	assert.Equal(t, 1024, svc.jobs[0].Shots)
	assert.NotEmpty(t, svc.jobs[0].ID)
	assert.True(t, strings.HasPrefix(svc.jobs[0].QASM, "OPENQASM 2.0;"))
}

func TestReal_SendsBearerToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(targetList{})
	}))
	defer srv.Close()

	_, err := newReal(t, srv.URL, func(c *RealConfig) { c.Token = "s3cret" }).Targets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", auth.Load())
}

func TestReal_Unavailable(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newReal(t, url).Run(context.Background(), classifierSpec(t, nil), 10)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})

	t.Run("no operational target", func(t *testing.T) {
		svc := &fakeService{targets: []Target{{Name: "down", Operational: false}}, counts: splitCounts}
		srv := httptest.NewServer(svc.handler())
		defer srv.Close()

		_, err := newReal(t, srv.URL).Run(context.Background(), classifierSpec(t, nil), 10)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		svc := &fakeService{targets: []Target{{Name: "slow", Operational: true}}, counts: splitCounts, jobDelay: time.Second}
		srv := httptest.NewServer(svc.handler())
		defer srv.Close()

		_, err := newReal(t, srv.URL, func(c *RealConfig) { c.Timeout = 50 * time.Millisecond }).
			Run(context.Background(), classifierSpec(t, nil), 10)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})

	t.Run("server errors exhaust retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newReal(t, srv.URL, func(c *RealConfig) { c.Retries = 2 }).Run(context.Background(), classifierSpec(t, nil), 10)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestReal_RejectsMalformedCounts(t *testing.T) {
	svc := &fakeService{
		targets: []Target{{Name: "a", Operational: true}},
		counts:  func(shots int) domain.OutcomeHistogram { return domain.OutcomeHistogram{"10": shots - 1} },
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	_, err := newReal(t, srv.URL).Run(context.Background(), classifierSpec(t, nil), 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrBackendUnavailable)
}

// stallingBodyHandler lists one target, then answers job submissions with
// headers and a partial body and never finishes it.
func stallingBodyHandler(release <-chan struct{}) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/backends", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(targetList{Backends: []Target{{Name: "slow", Operational: true}}})
	})
	mux.HandleFunc("POST /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"x","counts":{`))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	return mux
}

func TestReal_TimeoutWhileReadingBodyIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(stallingBodyHandler(release))
	defer srv.Close()
	defer close(release)

	r := newReal(t, srv.URL, func(c *RealConfig) { c.Timeout = 150 * time.Millisecond })
	_, err := r.Run(context.Background(), classifierSpec(t, nil), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestFallback_TimeoutWhileReadingBodyUsesSimulator(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(stallingBodyHandler(release))
	defer srv.Close()
	defer close(release)

	obs := &recordingObs{}
	exec, err := New(Config{Backend: BackendReal, Real: RealConfig{Endpoint: srv.URL, Timeout: 150 * time.Millisecond}}, obs, zerolog.Nop())
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), classifierSpec(t, []float64{0.2, 0.4, 0.1, 0.1}), 256)
	require.NoError(t, err)
	assert.Equal(t, SimulatedBackendName, res.Backend)
	assert.Equal(t, 256, res.Counts.Total())
	assert.Equal(t, []string{"backend_fallback"}, obs.warnings)
}

func TestReal_InvalidShots(t *testing.T) {
	_, err := newReal(t, "http://127.0.0.1:1").Run(context.Background(), classifierSpec(t, nil), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidShots)
}

func TestNewReal_RequiresEndpoint(t *testing.T) {
	_, err := NewReal(RealConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

type recordingObs struct {
	mu       sync.Mutex
	warnings []string
	counters map[string]float64
}

func (o *recordingObs) LogInfo(string, ...ports.Field) {}
func (o *recordingObs) LogWarn(msg string, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = append(o.warnings, msg)
}
func (o *recordingObs) LogError(string, error, ...ports.Field)    {}
func (o *recordingObs) LogCritical(string, error, ...ports.Field) {}
func (o *recordingObs) IncCounter(name string, v float64, _ ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counters == nil {
		o.counters = map[string]float64{}
	}
	o.counters[name] += v
}
func (o *recordingObs) ObserveLatency(string, float64)                    {}
func (o *recordingObs) SetGauge(string, float64)                          {}
func (o *recordingObs) RecordDLQ(ports.WALEntryID, *domain.Job, error) {}

type stubExecutor struct {
	exec ports.Execution
	err  error
	runs int
}

func (s *stubExecutor) Run(context.Context, domain.TransformSpec, int) (ports.Execution, error) {
	s.runs++
	return s.exec, s.err
}
func (s *stubExecutor) Name() string { return "stub" }

func TestFallback_UsesSimulatorWhenRemoteIsDown(t *testing.T) {
	obs := &recordingObs{}
	exec, err := New(Config{Backend: BackendReal, Real: RealConfig{Endpoint: "http://127.0.0.1:1", Timeout: time.Second}}, obs, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, RealBackendName, exec.Name())

	res, err := exec.Run(context.Background(), classifierSpec(t, []float64{0.95, 0.95, 0.01, 0.02}), 1024)
	require.NoError(t, err)
	assert.Equal(t, SimulatedBackendName, res.Backend)
	assert.Equal(t, 1024, res.Counts.Total())
	assert.Equal(t, []string{"backend_fallback"}, obs.warnings)
	assert.Equal(t, 1.0, obs.counters["qshield_backend_fallbacks_total"])
}

func TestFallback_SurvivesExpiredCallerContext(t *testing.T) {
	primary := &stubExecutor{err: domain.ErrBackendUnavailable}
	fb := NewFallback(primary, newSim(t, ModeExpected), &recordingObs{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := fb.Run(ctx, classifierSpec(t, nil), 64)
	require.NoError(t, err)
	assert.Equal(t, 64, res.Counts.Total())
}

func TestFallback_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("malformed response")
	secondary := &stubExecutor{}
	fb := NewFallback(&stubExecutor{err: boom}, secondary, &recordingObs{})

	_, err := fb.Run(context.Background(), classifierSpec(t, nil), 64)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, secondary.runs)
}

func TestNew_Selection(t *testing.T) {
	exec, err := New(Config{}, &recordingObs{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, exec)

	_, err = New(Config{Backend: "annealer"}, &recordingObs{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Backend: BackendReal}, &recordingObs{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Mode: "exact"}, &recordingObs{}, zerolog.Nop())
	assert.Error(t, err)
}
