package queue

import (
	"sync"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// MemQueue is a bounded FIFO of journaled jobs backed by a ring buffer.
// Ready is signalled whenever an enqueue makes the queue non-empty, so a
// consumer can park instead of polling.
type MemQueue struct {
	mu    sync.Mutex
	ring  []ports.QueuedJob
	head  int
	size  int
	ready chan struct{}
}

var _ ports.JobQueue = (*MemQueue)(nil)

func NewMemQueue(capacity int) *MemQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemQueue{
		ring:  make([]ports.QueuedJob, capacity),
		ready: make(chan struct{}, 1),
	}
}

func (q *MemQueue) Enqueue(id ports.WALEntryID, job *domain.Job) bool {
	q.mu.Lock()
	if q.size == len(q.ring) {
		q.mu.Unlock()
		return false
	}
	q.ring[(q.head+q.size)%len(q.ring)] = ports.QueuedJob{ID: id, Job: job}
	q.size++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// DequeueBatch pops up to max jobs in arrival order. max <= 0 drains the
// queue. An empty queue returns nil.
func (q *MemQueue) DequeueBatch(max int) []ports.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	if max <= 0 || max > q.size {
		max = q.size
	}
	out := make([]ports.QueuedJob, max)
	for i := range out {
		slot := (q.head + i) % len(q.ring)
		out[i] = q.ring[slot]
		q.ring[slot] = ports.QueuedJob{}
	}
	q.head = (q.head + max) % len(q.ring)
	q.size -= max
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *MemQueue) Cap() int { return len(q.ring) }

// Ready fires at most once per burst of enqueues. Callers must still
// tolerate an empty DequeueBatch after a wake-up.
func (q *MemQueue) Ready() <-chan struct{} { return q.ready }
