package qshield

import (
	"github.com/ghalamif/QShield/internal/app/config"
	"github.com/ghalamif/QShield/internal/logging"
	"github.com/ghalamif/QShield/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls journal and queue thresholds and the worker count.
	Policy = ports.Policy
	// ClassifierConfig selects backend, shots and feature encoding.
	ClassifierConfig = config.ClassifierConfig
	// ModelConfig locates the model bundle.
	ModelConfig = config.ModelConfig
	// SimulatorConfig selects expected or sampled counts.
	SimulatorConfig = config.SimulatorConfig
	// RealBackendConfig points at the remote execution service.
	RealBackendConfig = config.RealBackendConfig
	// JournalConfig configures on-disk durability.
	JournalConfig = config.JournalConfig
	// PostgresConfig configures the decisions table sink.
	PostgresConfig = config.PostgresConfig
	// KafkaConfig configures the decision stream sink.
	KafkaConfig = config.KafkaConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// HTTPConfig configures the classification API server.
	HTTPConfig = config.HTTPConfig
	// LogConfig configures the structured logger.
	LogConfig = logging.Config
)

// LoadConfig loads YAML from disk plus QSHIELD_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the built-in defaults: simulated backend, 1024 shots,
// aggregate encoding and no external sinks.
func DefaultConfig() *Config {
	return config.Default()
}
