package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/QShield/internal/circuit"
	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/features"
	"github.com/ghalamif/QShield/internal/interpret"
	"github.com/ghalamif/QShield/internal/model"
	"github.com/ghalamif/QShield/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultShots = 1024
	tracerName   = "github.com/ghalamif/QShield/internal/app/classifier"
)

// Evaluation is a decision together with the feature vector it was computed
// from and the number of records in the input. Err is the cause behind an
// error-shaped Decision.
type Evaluation struct {
	Decision   domain.DecisionRecord
	Features   []float64
	NumThreats int
	Err        error
}

// Classifier runs the encode → build → execute → interpret chain. It holds
// only read-only state after New and is safe for concurrent use.
type Classifier struct {
	params      *model.Parameters
	executor    ports.Executor
	encoder     *features.Encoder
	variational domain.TransformSpec
	shots       int
	obs         ports.Observability
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Classifier)

func WithShots(n int) Option { return func(c *Classifier) { c.shots = n } }

func WithEncoder(e *features.Encoder) Option {
	return func(c *Classifier) {
		if e != nil {
			c.encoder = e
		}
	}
}

func WithObservability(o ports.Observability) Option {
	return func(c *Classifier) {
		if o != nil {
			c.obs = o
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Classifier) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

var _ ports.JobClassifier = (*Classifier)(nil)

// New validates params and prepares the variational transform once. A zero or
// negative feature scale, or a model wider than the executor can run, is
// rejected here rather than at classification time.
func New(params *model.Parameters, exec ports.Executor, opts ...Option) (*Classifier, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: no parameters", domain.ErrInvalidModel)
	}
	if exec == nil {
		return nil, errors.New("classifier: executor is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if wl, ok := exec.(ports.WidthLimited); ok && wl.MaxWidth() > 0 && params.QubitCount > wl.MaxWidth() {
		return nil, fmt.Errorf("%w: %d qubits exceed the %d supported by executor %s",
			domain.ErrInvalidModel, params.QubitCount, wl.MaxWidth(), exec.Name())
	}

	c := &Classifier{
		params:   params.Clone(),
		executor: exec,
		encoder:  features.Default(),
		shots:    DefaultShots,
		obs:      nopObs{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shots <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidShots, c.shots)
	}
	c.variational = circuit.BuildVariational(c.params)
	return c, nil
}

func (c *Classifier) Shots() int                    { return c.shots }
func (c *Classifier) Threshold() float64            { return c.params.Threshold }
func (c *Classifier) BackendName() string           { return c.executor.Name() }
func (c *Classifier) Parameters() *model.Parameters { return c.params.Clone() }

// Classify validates typed records and returns their decision. Failures are
// reported through DecisionRecord.Error, never as a Go error or panic.
func (c *Classifier) Classify(ctx context.Context, records []domain.ThreatRecord) domain.DecisionRecord {
	return c.Evaluate(ctx, records).Decision
}

// ClassifyPayload decodes a raw {"threats":[...]} document and classifies it.
func (c *Classifier) ClassifyPayload(ctx context.Context, raw []byte) domain.DecisionRecord {
	return c.EvaluatePayload(ctx, raw).Decision
}

func (c *Classifier) Evaluate(ctx context.Context, records []domain.ThreatRecord) Evaluation {
	if err := domain.ValidateRecords(records); err != nil {
		return c.failed(err, len(records))
	}
	return c.evaluate(ctx, records)
}

func (c *Classifier) EvaluatePayload(ctx context.Context, raw []byte) Evaluation {
	records, err := domain.ParseRecordSet(raw)
	if err != nil {
		return c.failed(err, 0)
	}
	return c.evaluate(ctx, records)
}

// ClassifyJob adapts EvaluatePayload to the runtime's worker pool.
func (c *Classifier) ClassifyJob(ctx context.Context, job *domain.Job) *domain.Outcome {
	ev := c.EvaluatePayload(ctx, job.Payload)
	return &domain.Outcome{
		JobID:        job.ID,
		Source:       job.Source,
		Decision:     ev.Decision,
		NumThreats:   ev.NumThreats,
		FeaturesUsed: ev.Features,
		CompletedAt:  c.now().UTC(),
	}
}

func (c *Classifier) evaluate(ctx context.Context, records []domain.ThreatRecord) (ev Evaluation) {
	start := c.now()
	ctx, span := c.tracer.Start(ctx, "qshield.classify",
		trace.WithAttributes(
			attribute.Int("qshield.threats", len(records)),
			attribute.Int("qshield.shots", c.shots),
			attribute.String("qshield.backend", c.executor.Name()),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("classifier: recovered from panic: %v", r)
			c.obs.LogCritical("classify_panic", err)
			ev = c.failed(err, len(records))
		}
		if ev.Decision.Failed() {
			span.SetStatus(codes.Error, ev.Decision.Error)
		}
	}()

	raw := c.encoder.Encode(records)
	scaled := c.params.Scale(raw)

	spec, err := circuit.Compose(circuit.BuildFeatureMap(scaled, c.params.QubitCount), c.variational)
	if err != nil {
		return c.failed(err, len(records))
	}

	exec, err := c.executor.Run(ctx, spec, c.shots)
	if err != nil {
		c.obs.LogError("execution_failed", err, ports.Field{Key: "backend", Value: c.executor.Name()})
		return c.failed(err, len(records))
	}

	result := interpret.Interpret(exec.Counts, c.params.Threshold)
	decision := domain.DecisionRecord{
		Prediction:   result.Prediction,
		Probability:  result.Probability,
		Confidence:   result.Confidence,
		Threshold:    c.params.Threshold,
		IsMalicious:  result.Prediction == 1,
		BackendName:  exec.Backend,
		Timestamp:    c.now().UTC().Format(time.RFC3339),
		RawHistogram: exec.Counts.Clone(),
	}

	span.SetAttributes(
		attribute.Float64("qshield.probability", decision.Probability),
		attribute.Bool("qshield.malicious", decision.IsMalicious),
	)
	c.obs.IncCounter("qshield_classifications_total", 1, decision.Verdict())
	c.obs.ObserveLatency("qshield_classify_latency_seconds", c.now().Sub(start).Seconds())

	return Evaluation{Decision: decision, Features: raw, NumThreats: len(records)}
}

// failed builds the error-shaped record: zero prediction, probability and
// confidence plus the error text.
func (c *Classifier) failed(err error, numThreats int) Evaluation {
	c.obs.IncCounter("qshield_classifications_total", 1, "error")
	return Evaluation{
		Decision: domain.DecisionRecord{
			Threshold:    c.params.Threshold,
			BackendName:  c.executor.Name(),
			Timestamp:    c.now().UTC().Format(time.RFC3339),
			RawHistogram: domain.OutcomeHistogram{},
			Error:        err.Error(),
		},
		NumThreats: numThreats,
		Err:        err,
	}
}

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)                 {}
func (nopObs) LogWarn(string, ...ports.Field)                 {}
func (nopObs) LogError(string, error, ...ports.Field)         {}
func (nopObs) LogCritical(string, error, ...ports.Field)      {}
func (nopObs) IncCounter(string, float64, ...string)          {}
func (nopObs) ObserveLatency(string, float64)                 {}
func (nopObs) SetGauge(string, float64)                       {}
func (nopObs) RecordDLQ(ports.WALEntryID, *domain.Job, error) {}
