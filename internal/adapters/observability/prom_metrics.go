package observability

import (
	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PromObs logs through zerolog and keeps Prometheus collectors keyed by
// metric name. Unknown names are ignored.
type PromObs struct {
	log      zerolog.Logger
	counters map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var _ ports.Observability = (*PromObs)(nil)

// NewPromObs registers the QShield collectors on reg. A nil reg gets a private
// registry, which keeps repeated construction in tests and examples safe.
func NewPromObs(reg prometheus.Registerer, log zerolog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qshield_classifications_total",
		Help: "Classifications by outcome (malicious, benign, error).",
	}, []string{"outcome"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qshield_backend_fallbacks_total",
		Help: "Executions rerun on the local simulator after the remote backend was unavailable.",
	}, nil)
	persisted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qshield_decisions_persisted_total",
		Help: "Outcomes accepted by the decision sink.",
	}, nil)
	dlq := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qshield_jobs_dlq_total",
		Help: "Jobs that produced no outcome.",
	}, nil)
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qshield_jobs_dropped_total",
		Help: "Jobs lost to journal or queue backpressure policies.",
	}, nil)
	journalGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qshield_journal_size_bytes",
		Help: "Size of the job journal on disk.",
	})
	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qshield_queue_length",
		Help: "Jobs waiting in the in-memory queue.",
	})
	classifyLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qshield_classify_latency_seconds",
		Help:    "Time from record set to decision.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qshield_sink_latency_seconds",
		Help:    "Time to hand one outcome batch to the decision sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(classifications, fallbacks, persisted, dlq, dropped, journalGauge, queueGauge, classifyLatency, sinkLatency)

	return &PromObs{
		log: log,
		counters: map[string]*prometheus.CounterVec{
			"qshield_classifications_total":     classifications,
			"qshield_backend_fallbacks_total":   fallbacks,
			"qshield_decisions_persisted_total": persisted,
			"qshield_jobs_dlq_total":            dlq,
			"qshield_jobs_dropped_total":        dropped,
		},
		gauges: map[string]prometheus.Gauge{
			"qshield_journal_size_bytes": journalGauge,
			"qshield_queue_length":       queueGauge,
		},
		histos: map[string]prometheus.Observer{
			"qshield_classify_latency_seconds": classifyLatency,
			"qshield_sink_latency_seconds":     sinkLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.log.Info(), fields).Msg(msg)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	withFields(p.log.Warn(), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err).Bool("critical", true), fields).Msg(msg)
}

// IncCounter ignores calls whose label count does not match the counter.
func (p *PromObs) IncCounter(name string, v float64, labelValues ...string) {
	vec, ok := p.counters[name]
	if !ok {
		return
	}
	c, err := vec.GetMetricWithLabelValues(labelValues...)
	if err != nil {
		p.log.Debug().Err(err).Str("metric", name).Msg("counter label mismatch")
		return
	}
	c.Add(v)
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, job *domain.Job, err error) {
	p.IncCounter("qshield_jobs_dlq_total", 1)
	ev := p.log.Error().Err(err).Uint64("wal_id", uint64(id))
	if job != nil {
		ev = ev.Str("job_id", job.ID).Str("source", job.Source)
	}
	ev.Msg("job sent to dlq")
}

func withFields(ev *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}
