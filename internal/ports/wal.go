package ports

import "github.com/ghalamif/QShield/internal/domain"

type WALEntryID uint64

// WAL journals accepted jobs until their outcomes have been handed to a sink.
type WAL interface {
	Append(job *domain.Job) (WALEntryID, error)
	Iterate(from WALEntryID, fn func(id WALEntryID, job *domain.Job) error) error
	Commit(upto WALEntryID) error
	TruncateCommitted() error
	Stats() WALStats
}

type WALStats struct {
	OldestUncommitted WALEntryID
	LatestAppended    WALEntryID
	SizeBytes         int64
}
