// Package executor runs transforms on a remote service or the local
// simulator.
//
// In the simulator the verdict is set by the feature-map angles alone: the
// malicious share of shots follows RiskSignal, and the trained variational
// coefficients only decide how shots spread over labels within each
// decision-bit half. A trained model therefore never changes a simulated
// decision.
package executor

import (
	"fmt"

	"github.com/ghalamif/QShield/internal/ports"
	"github.com/rs/zerolog"
)

const (
	BackendSimulated = "simulated"
	BackendReal      = "real"
)

type Config struct {
	Backend string
	Mode    SimulationMode
	Real    RealConfig
}

// New builds the executor selected by cfg.Backend. The real backend is always
// wrapped so that unavailability falls back to the simulator.
func New(cfg Config, obs ports.Observability, log zerolog.Logger) (ports.Executor, error) {
	sim, err := NewSimulated(cfg.Mode, log.With().Str("executor", SimulatedBackendName).Logger())
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "", BackendSimulated:
		return sim, nil
	case BackendReal:
		remote, err := NewReal(cfg.Real, log.With().Str("executor", RealBackendName).Logger())
		if err != nil {
			return nil, err
		}
		return NewFallback(remote, sim, obs), nil
	default:
		return nil, fmt.Errorf("executor: unknown backend %q", cfg.Backend)
	}
}
