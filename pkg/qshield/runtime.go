package qshield

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ghalamif/QShield/internal/adapters/httpapi"
	"github.com/ghalamif/QShield/internal/adapters/observability"
	"github.com/ghalamif/QShield/internal/adapters/queue"
	"github.com/ghalamif/QShield/internal/adapters/sink"
	"github.com/ghalamif/QShield/internal/adapters/wal"
	"github.com/ghalamif/QShield/internal/app/pipeline"
	"github.com/ghalamif/QShield/internal/logging"
	"github.com/ghalamif/QShield/internal/ports"
)

const (
	gaugeInterval   = time.Second
	compactInterval = time.Minute
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	collector     Collector
	sink          DecisionSink
	wal           WAL
	queue         JobQueue
	observability Observability
	executor      Executor
	params        *Parameters
	logger        *zerolog.Logger
	registry      *prometheus.Registry
}

// WithCollector injects a collector that feeds jobs into the pipeline.
func WithCollector(col Collector) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.collector = col
	}
}

// WithSink injects a custom sink so outcomes can be sent to any database or API.
func WithSink(s DecisionSink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own journal implementation.
func WithWAL(w WAL) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithJobQueue injects a custom queue implementation.
func WithJobQueue(q JobQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithExecutor replaces the executor selected by the configuration.
func WithExecutor(exec Executor) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.executor = exec
	}
}

// WithParameters skips loading the model bundle and uses p instead.
func WithParameters(p *Parameters) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.params = p
	}
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(log zerolog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = &log
	}
}

// WithRegistry registers runtime metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// Runtime wires up the collector → journal → queue → classifier → sink
// pipeline and exposes simple lifecycle hooks for embedding QShield inside
// any Go service.
type Runtime struct {
	cfg        *Config
	policy     ports.Policy
	log        zerolog.Logger
	obs        ports.Observability
	registry   *prometheus.Registry
	wal        ports.WAL
	queue      ports.JobQueue
	collector  ports.Collector
	sink       ports.DecisionSink
	classifier *Classifier
	closers    []func() error

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	workerDone chan struct{}
	gaugeDone  chan struct{}
	servers    []*http.Server
}

// NewRuntime bootstraps the default adapters (file journal, in-memory queue,
// configured executor, Postgres/Kafka/log sinks, Prometheus observability).
// Callers can use RuntimeOption values to override any dependency.
func NewRuntime(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{cfg: cfg, policy: cfg.Policy}
	ok := false
	defer func() {
		if !ok {
			rt.closeAll()
		}
	}()

	if overrides.logger != nil {
		rt.log = *overrides.logger
	} else {
		rt.log = logging.New(cfg.Log)
	}

	rt.registry = overrides.registry
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	rt.obs = overrides.observability
	if rt.obs == nil {
		rt.obs = observability.NewPromObs(rt.registry, rt.log)
	}

	rt.wal = overrides.wal
	if rt.wal == nil {
		fw, err := wal.NewFileWAL(cfg.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.wal = fw
		rt.closers = append(rt.closers, fw.Close)
	}

	rt.queue = overrides.queue
	if rt.queue == nil {
		rt.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	params := overrides.params
	if params == nil {
		var err error
		params, err = LoadParameters(ctx, cfg, rt.log)
		if err != nil {
			return nil, err
		}
	}

	exec := overrides.executor
	if exec == nil {
		var err error
		exec, err = NewExecutor(cfg, rt.obs, rt.log)
		if err != nil {
			return nil, err
		}
	}

	cls, err := NewClassifier(cfg, params, exec, rt.obs)
	if err != nil {
		return nil, err
	}
	rt.classifier = cls

	rt.sink = overrides.sink
	if rt.sink == nil {
		if rt.sink, err = rt.buildSink(ctx); err != nil {
			return nil, err
		}
	}

	rt.collector = overrides.collector

	ok = true
	return rt, nil
}

// buildSink fans out to every configured destination, or logs outcomes when
// none is configured.
func (r *Runtime) buildSink(ctx context.Context) (ports.DecisionSink, error) {
	var sinks []ports.DecisionSink

	if r.cfg.Postgres.ConnString != "" {
		db, err := sink.OpenPostgres(ctx, r.cfg.Postgres.ConnString)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, db.Close)
		pg, err := sink.NewPostgresSink(db, r.cfg.Postgres.Table)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		sinks = append(sinks, pg)
	}

	if len(r.cfg.Kafka.Brokers) > 0 {
		k := sink.NewKafkaSink(r.cfg.Kafka.Brokers, r.cfg.Kafka.Topic)
		r.closers = append(r.closers, k.Close)
		sinks = append(sinks, k)
	}

	switch len(sinks) {
	case 0:
		return sink.NewLogSink(r.log), nil
	case 1:
		return sinks[0], nil
	default:
		return sink.NewFanout(sinks...), nil
	}
}

// Classifier returns the synchronous classifier shared with the workers.
func (r *Runtime) Classifier() *Classifier { return r.classifier }

// Registry returns the Prometheus registry the runtime reports to.
func (r *Runtime) Registry() *prometheus.Registry { return r.registry }

// SinkName reports the active sink, e.g. "postgres" or "fanout(postgres,kafka:x)".
func (r *Runtime) SinkName() string { return r.sink.Name() }

// Stats summarizes journal and queue state.
func (r *Runtime) Stats() map[string]any {
	st := r.wal.Stats()
	return map[string]any{
		"queue_length":       r.queue.Len(),
		"journal_size_bytes": st.SizeBytes,
		"latest_appended":    uint64(st.LatestAppended),
		"oldest_uncommitted": uint64(st.OldestUncommitted),
	}
}

// Start replays the journal, launches the worker pool, the collector and the
// configured HTTP servers. It returns immediately; call Run to block on a
// context instead.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	r.workerDone = make(chan struct{})
	go func() {
		defer close(r.workerDone)
		_ = pipeline.RunClassifyPipeline(runCtx, r.wal, r.queue, r.classifier, r.sink, r.policy, r.obs)
	}()

	n, err := pipeline.Replay(runCtx, r.wal, r.queue, r.policy)
	if err != nil {
		cancel()
		<-r.workerDone
		return fmt.Errorf("journal replay: %w", err)
	}
	if n > 0 {
		r.obs.LogInfo("wal_replay_complete", ports.Field{Key: "jobs", Value: n})
	}

	if r.collector != nil {
		if err := pipeline.RunIntakePipeline(runCtx, r.collector, r.wal, r.queue, r.policy, r.obs); err != nil {
			cancel()
			<-r.workerDone
			return err
		}
	}

	if addr := r.cfg.HTTP.Addr; addr != "" {
		api := httpapi.New(httpapi.Config{
			Evaluator: r.classifier,
			Submit:    r.Submit,
			Gatherer:  r.registry,
			Stats:     r.Stats,
			Log:       r.log,
		})
		r.serve(addr, api)
	}
	if addr := r.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.serve(addr, mux)
	}

	r.gaugeDone = make(chan struct{})
	go r.maintain(runCtx, gaugeInterval, compactInterval)

	r.started = true
	r.log.Info().
		Str("backend", r.classifier.BackendName()).
		Str("sink", r.sink.Name()).
		Int("workers", r.policy.Workers).
		Msg("runtime started")
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the collector and servers, waits for the worker pool to
// finish its current batch and closes the journal and sink connections.
// Jobs still queued stay in the journal and are replayed on the next start.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	if r.collector != nil {
		if err := r.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, srv := range r.servers {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	r.servers = nil

	if r.cancel != nil {
		r.cancel()
		for _, done := range []chan struct{}{r.workerDone, r.gaugeDone} {
			if done == nil {
				continue
			}
			select {
			case <-done:
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
			}
		}
		r.cancel = nil
	}

	if err := r.closeAll(); err != nil {
		errs = append(errs, err)
	}
	r.started = false
	return errors.Join(errs...)
}

func (r *Runtime) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) serve(addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.servers = append(r.servers, srv)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error().Err(err).Str("addr", addr).Msg("http server exited")
		}
	}()
}

// maintain publishes journal and queue gauges and periodically compacts the
// committed prefix of the journal.
func (r *Runtime) maintain(ctx context.Context, gaugeEvery, compactEvery time.Duration) {
	defer close(r.gaugeDone)

	gauges := time.NewTicker(gaugeEvery)
	defer gauges.Stop()
	compact := time.NewTicker(compactEvery)
	defer compact.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gauges.C:
			stats := r.wal.Stats()
			r.obs.SetGauge("qshield_journal_size_bytes", float64(stats.SizeBytes))
			r.obs.SetGauge("qshield_queue_length", float64(r.queue.Len()))
		case <-compact.C:
			if err := r.wal.TruncateCommitted(); err != nil {
				r.obs.LogError("wal_compact_failed", err)
			}
		}
	}
}
