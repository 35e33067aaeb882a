package qshield

import (
	"github.com/ghalamif/QShield/internal/app/classifier"
	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/model"
	"github.com/ghalamif/QShield/internal/ports"
)

// ThreatRecord is one threat-intelligence event in a submitted record set.
type ThreatRecord = domain.ThreatRecord

// DecisionRecord is the verdict produced for one record set.
type DecisionRecord = domain.DecisionRecord

// OutcomeHistogram maps measured bitstrings to shot counts.
type OutcomeHistogram = domain.OutcomeHistogram

// Job is the unit that flows through the journal → queue → worker pipeline.
type Job = domain.Job

// Outcome is what sinks receive for every processed job.
type Outcome = domain.Outcome

// QueuedJob represents an item buffered inside the bounded queue.
type QueuedJob = ports.QueuedJob

// Collector streams submitted jobs from any source into the pipeline.
type Collector = ports.Collector

// JobQueue is the bounded queue between admission and the worker pool.
type JobQueue = ports.JobQueue

// DecisionSink consumes ordered outcome batches.
type DecisionSink = ports.DecisionSink

// Executor runs a transform for a number of shots.
type Executor = ports.Executor

// ParamStore holds the serialized model bundle.
type ParamStore = ports.ParamStore

// Observability emits logs and metrics about throughput, latency and DLQ conditions.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the job journal used for crash recovery.
type WAL = ports.WAL

// WALStats exposes journal metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a journal entry.
type WALEntryID = ports.WALEntryID

// Parameters is the trained model bundle.
type Parameters = model.Parameters

// Classifier is the synchronous encode → build → execute → interpret chain.
type Classifier = classifier.Classifier

// Evaluation is a decision plus the features and record count behind it.
type Evaluation = classifier.Evaluation

// Execution is the measured result of running a transform.
type Execution = ports.Execution
