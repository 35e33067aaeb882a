package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

var errNoOutcome = errors.New("classifier returned no outcome")

// readyNotifier is implemented by queues that can wake an idle consumer.
type readyNotifier interface {
	Ready() <-chan struct{}
}

// RunClassifyPipeline drains q until ctx is cancelled. Each batch is
// classified by at most pol.Workers goroutines, written to sink in queue
// order, and committed in the WAL only after the sink accepted it.
func RunClassifyPipeline(ctx context.Context, wal ports.WAL, q ports.JobQueue, cls ports.JobClassifier, sink ports.DecisionSink, pol ports.Policy, obs ports.Observability) error {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = defaultIdleSleep
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			if !waitForWork(ctx, q, idle) {
				return ctx.Err()
			}
			continue
		}

		ProcessBatch(ctx, wal, batch, cls, sink, pol.Workers, obs)
	}
}

// ProcessBatch classifies one dequeued batch and hands the outcomes to sink.
// It reports whether the batch was committed.
func ProcessBatch(ctx context.Context, wal ports.WAL, batch []ports.QueuedJob, cls ports.JobClassifier, sink ports.DecisionSink, workers int, obs ports.Observability) bool {
	var maxID ports.WALEntryID
	for _, item := range batch {
		if item.ID > maxID {
			maxID = item.ID
		}
	}

	results := classifyAll(ctx, batch, cls, workers)

	out := make([]*domain.Outcome, 0, len(results))
	for i, res := range results {
		if res == nil {
			obs.RecordDLQ(batch[i].ID, batch[i].Job, errNoOutcome)
			continue
		}
		out = append(out, res)
	}

	if len(out) == 0 {
		if err := wal.Commit(maxID); err != nil {
			obs.LogError("wal_commit_failed", err)
		}
		return true
	}

	start := time.Now()
	if err := sink.WriteBatch(out); err != nil {
		obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: sink.Name()}, ports.Field{Key: "batch", Value: len(out)})
		// left uncommitted; replayed on the next start
		return false
	}
	obs.ObserveLatency("qshield_sink_latency_seconds", time.Since(start).Seconds())
	obs.IncCounter("qshield_decisions_persisted_total", float64(len(out)))

	if err := wal.Commit(maxID); err != nil {
		obs.LogError("wal_commit_failed", err)
		return false
	}
	return true
}

// waitForWork parks until q signals new work or idle elapses. It reports
// false once ctx is done.
func waitForWork(ctx context.Context, q ports.JobQueue, idle time.Duration) bool {
	rn, ok := q.(readyNotifier)
	if !ok {
		return sleepCtx(ctx, idle)
	}
	t := time.NewTimer(idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-rn.Ready():
		return true
	case <-t.C:
		return true
	}
}

func classifyAll(ctx context.Context, batch []ports.QueuedJob, cls ports.JobClassifier, workers int) []*domain.Outcome {
	if workers <= 0 {
		workers = 1
	}
	results := make([]*domain.Outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range batch {
		if item.Job == nil {
			continue
		}
		g.Go(func() error {
			results[i] = cls.ClassifyJob(ctx, item.Job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
