package ports

import (
	"context"

	"github.com/ghalamif/QShield/internal/domain"
)

// Execution is the measured result of running a TransformSpec.
type Execution struct {
	Counts  domain.OutcomeHistogram
	Backend string
}

// Executor runs a TransformSpec for a number of shots. The returned counts
// always sum to shots.
type Executor interface {
	Run(ctx context.Context, spec domain.TransformSpec, shots int) (Execution, error)
	Name() string
}

// WidthLimited is implemented by executors that cannot run transforms wider
// than MaxWidth qubits.
type WidthLimited interface {
	MaxWidth() int
}
