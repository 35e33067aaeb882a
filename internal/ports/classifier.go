package ports

import (
	"context"

	"github.com/ghalamif/QShield/internal/domain"
)

// JobClassifier turns a job into an outcome. It never fails: invalid payloads
// and backend errors come back as error-shaped decisions.
type JobClassifier interface {
	ClassifyJob(ctx context.Context, job *domain.Job) *domain.Outcome
}
