package qshield

import (
	"context"

	"github.com/rs/zerolog"

	base "github.com/ghalamif/QShield/pkg/qshield"
)

// Re-exported errors for convenience.
var (
	ErrQueueFull         = base.ErrQueueFull
	ErrJournalFull       = base.ErrJournalFull
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/QShield directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	Runtime          = base.Runtime
	RuntimeOption    = base.RuntimeOption
	Classifier       = base.Classifier
	Evaluation       = base.Evaluation
	Parameters       = base.Parameters
	ThreatRecord     = base.ThreatRecord
	DecisionRecord   = base.DecisionRecord
	OutcomeHistogram = base.OutcomeHistogram
	Job              = base.Job
	Outcome          = base.Outcome
	OutcomeBatchSink = base.OutcomeBatchSink
	Collector        = base.Collector
	DecisionSink     = base.DecisionSink
	Executor         = base.Executor
	JobQueue         = base.JobQueue
	WAL              = base.WAL
	Observability    = base.Observability
	QueuedJob        = base.QueuedJob
	WALEntryID       = base.WALEntryID
	WALStats         = base.WALStats
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInQueue(q JobQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s DecisionSink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutExecutor(exec Executor) StreamOutOption {
	return base.StreamOutExecutor(exec)
}

func StreamOutParameters(p *Parameters) StreamOutOption {
	return base.StreamOutParameters(p)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn OutcomeBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(ctx, cfg, opts...)
}

func WithCollector(col Collector) RuntimeOption {
	return base.WithCollector(col)
}

func WithSink(s DecisionSink) RuntimeOption {
	return base.WithSink(s)
}

func WithWAL(w WAL) RuntimeOption {
	return base.WithWAL(w)
}

func WithJobQueue(q JobQueue) RuntimeOption {
	return base.WithJobQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithExecutor(exec Executor) RuntimeOption {
	return base.WithExecutor(exec)
}

func WithParameters(p *Parameters) RuntimeOption {
	return base.WithParameters(p)
}

func WithLogger(log zerolog.Logger) RuntimeOption {
	return base.WithLogger(log)
}

// Synchronous classification.
func LoadParameters(ctx context.Context, cfg *Config, log zerolog.Logger) (*Parameters, error) {
	return base.LoadParameters(ctx, cfg, log)
}

func NewExecutor(cfg *Config, obs Observability, log zerolog.Logger) (Executor, error) {
	return base.NewExecutor(cfg, obs, log)
}

func NewClassifier(cfg *Config, params *Parameters, exec Executor, obs Observability) (*Classifier, error) {
	return base.NewClassifier(cfg, params, exec, obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn OutcomeBatchSink) DecisionSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (DecisionSink, <-chan []Outcome, func()) {
	return base.NewChannelSink(name, buffer)
}

// Model store helpers.
func OpenParamStore(cfg *Config) (base.ParamStore, func() error) {
	return base.OpenParamStore(cfg)
}

func SaveParameters(ctx context.Context, cfg *Config, p *Parameters) error {
	return base.SaveParameters(ctx, cfg, p)
}

func DefaultParameters() *Parameters {
	return base.DefaultParameters()
}
