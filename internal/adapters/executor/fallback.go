package executor

import (
	"context"
	"errors"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// Fallback runs primary and, when it reports ErrBackendUnavailable, reruns the
// same spec on secondary. Other errors are returned unchanged.
type Fallback struct {
	primary   ports.Executor
	secondary ports.Executor
	obs       ports.Observability
}

var _ ports.Executor = (*Fallback)(nil)

func NewFallback(primary, secondary ports.Executor, obs ports.Observability) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, obs: obs}
}

func (f *Fallback) Name() string { return f.primary.Name() }

// MaxWidth is the tighter limit of the two executors, since either may end
// up running the transform. 0 means unlimited.
func (f *Fallback) MaxWidth() int {
	limit := 0
	for _, e := range []ports.Executor{f.primary, f.secondary} {
		wl, ok := e.(ports.WidthLimited)
		if !ok || wl.MaxWidth() <= 0 {
			continue
		}
		if limit == 0 || wl.MaxWidth() < limit {
			limit = wl.MaxWidth()
		}
	}
	return limit
}

func (f *Fallback) Run(ctx context.Context, spec domain.TransformSpec, shots int) (ports.Execution, error) {
	exec, err := f.primary.Run(ctx, spec, shots)
	if err == nil || !errors.Is(err, domain.ErrBackendUnavailable) {
		return exec, err
	}

	f.obs.LogWarn("backend_fallback",
		ports.Field{Key: "primary", Value: f.primary.Name()},
		ports.Field{Key: "secondary", Value: f.secondary.Name()},
		ports.Field{Key: "reason", Value: err.Error()},
	)
	f.obs.IncCounter("qshield_backend_fallbacks_total", 1)

	// The primary may have consumed the caller's deadline; the local run
	// must still answer.
	return f.secondary.Run(context.WithoutCancel(ctx), spec, shots)
}
