package ports

import "github.com/ghalamif/QShield/internal/domain"

type QueuedJob struct {
	ID  WALEntryID
	Job *domain.Job
}

type JobQueue interface {
	Enqueue(id WALEntryID, job *domain.Job) bool
	DequeueBatch(max int) []QueuedJob
	Len() int
}
