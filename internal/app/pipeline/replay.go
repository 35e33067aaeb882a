package pipeline

import (
	"context"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// Replay re-enqueues every journaled job that was not committed before the
// last shutdown and returns how many were restored. Entries are read out of
// the WAL first so workers can keep committing while Replay waits on a full
// queue.
func Replay(ctx context.Context, wal ports.WAL, q ports.JobQueue, pol ports.Policy) (int, error) {
	var pending []ports.QueuedJob
	err := wal.Iterate(wal.Stats().OldestUncommitted, func(id ports.WALEntryID, job *domain.Job) error {
		pending = append(pending, ports.QueuedJob{ID: id, Job: job})
		return nil
	})
	if err != nil {
		return 0, err
	}

	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = defaultIdleSleep
	}
	for i, item := range pending {
		for !q.Enqueue(item.ID, item.Job) {
			if !sleepCtx(ctx, sleep) {
				return i, ctx.Err()
			}
		}
	}
	return len(pending), nil
}
