package qshield

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/QShield/internal/app/pipeline"
	"github.com/ghalamif/QShield/internal/domain"
)

var (
	// ErrQueueFull indicates the job queue refused the job according to policy.
	ErrQueueFull = pipeline.ErrQueueFull
	// ErrJournalFull indicates the journal is at capacity and OnWALFull != "block".
	ErrJournalFull = pipeline.ErrJournalFull
)

// Submit journals job and enqueues it for the worker pool. The outcome is
// delivered to the runtime's sink.
func (r *Runtime) Submit(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	return pipeline.Admit(ctx, r.wal, r.queue, job, r.policy, r.obs)
}

// SubmitPayload validates a raw {"threats":[...]} document and submits it,
// returning the new job id.
func (r *Runtime) SubmitPayload(ctx context.Context, raw []byte, source string) (string, error) {
	if _, err := domain.ParseRecordSet(raw); err != nil {
		return "", err
	}
	job := &Job{
		ID:          uuid.NewString(),
		Payload:     append(json.RawMessage(nil), raw...),
		SubmittedAt: time.Now().UTC(),
		Source:      source,
	}
	if err := r.Submit(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// SubmitRecords submits typed records built in-process.
func (r *Runtime) SubmitRecords(ctx context.Context, records []ThreatRecord, source string) (string, error) {
	if err := domain.ValidateRecords(records); err != nil {
		return "", err
	}
	if records == nil {
		records = []ThreatRecord{}
	}
	raw, err := json.Marshal(domain.RecordSet{Threats: records})
	if err != nil {
		return "", err
	}
	return r.SubmitPayload(ctx, raw, source)
}
