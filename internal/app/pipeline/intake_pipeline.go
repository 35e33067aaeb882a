package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

var (
	ErrJournalFull = errors.New("qshield: journal is full")
	ErrQueueFull   = errors.New("qshield: job queue is full")
)

const defaultIdleSleep = 5 * time.Millisecond

// RunIntakePipeline starts col and journals + enqueues every job it emits
// until ctx is cancelled.
func RunIntakePipeline(ctx context.Context, col ports.Collector, wal ports.WAL, q ports.JobQueue, pol ports.Policy, obs ports.Observability) error {
	ch := make(chan *domain.Job, pol.MaxQueueLen)

	if err := col.Start(ch); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-ch:
				if err := Admit(ctx, wal, q, job, pol, obs); err != nil && !errors.Is(err, context.Canceled) {
					obs.LogWarn("intake_job_rejected", ports.Field{Key: "job_id", Value: job.ID}, ports.Field{Key: "reason", Value: err.Error()})
				}
			}
		}
	}()

	return nil
}

// Admit journals job and places it on q, applying the WAL-full and
// queue-full policies. A job is journaled before it is enqueued, so a job
// accepted here survives a restart even if no worker reached it.
func Admit(ctx context.Context, wal ports.WAL, q ports.JobQueue, job *domain.Job, pol ports.Policy, obs ports.Observability) error {
	// reject refuses before journaling so a refused job is never replayed
	if pol.OnQueueFull == "reject" && pol.MaxQueueLen > 0 && q.Len() >= pol.MaxQueueLen {
		obs.IncCounter("qshield_jobs_dropped_total", 1)
		return ErrQueueFull
	}

	if !waitForWALCapacity(ctx, wal, pol, obs) {
		if err := ctx.Err(); err != nil {
			return err
		}
		obs.IncCounter("qshield_jobs_dropped_total", 1)
		return ErrJournalFull
	}

	id, err := wal.Append(job)
	if err != nil {
		obs.LogCritical("wal_append_failed", err, ports.Field{Key: "job_id", Value: job.ID})
		return fmt.Errorf("journal append: %w", err)
	}

	if !enqueueWithPolicy(ctx, q, id, job, pol, obs) {
		if err := ctx.Err(); err != nil {
			return err
		}
		obs.IncCounter("qshield_jobs_dropped_total", 1)
		return ErrQueueFull
	}
	return nil
}

func waitForWALCapacity(ctx context.Context, wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = defaultIdleSleep
	}

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			if !sleepCtx(ctx, sleep) {
				return false
			}
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(ctx context.Context, q ports.JobQueue, id ports.WALEntryID, job *domain.Job, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = defaultIdleSleep
	}

	for {
		if ok := q.Enqueue(id, job); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if !sleepCtx(ctx, sleep) {
				return false
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
