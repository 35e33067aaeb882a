package qshield

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ghalamif/QShield/internal/adapters/executor"
	"github.com/ghalamif/QShield/internal/adapters/paramstore"
	"github.com/ghalamif/QShield/internal/app/classifier"
	"github.com/ghalamif/QShield/internal/features"
	"github.com/ghalamif/QShield/internal/model"
	"github.com/ghalamif/QShield/internal/ports"
)

// OpenParamStore returns the Redis-backed store when cfg.Model.RedisAddr is
// set and the file store at cfg.Model.Path otherwise. The close function
// releases any client the store holds.
func OpenParamStore(cfg *Config) (ParamStore, func() error) {
	if cfg.Model.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Model.RedisAddr})
		key := cfg.Model.RedisKey
		if key == "" {
			key = paramstore.DefaultRedisKey
		}
		return paramstore.NewRedisStore(client, key), client.Close
	}
	return paramstore.NewFileStore(cfg.Model.Path), func() error { return nil }
}

// LoadParameters reads the model bundle from the configured store, falling
// back to the default bundle when none has been written yet.
func LoadParameters(ctx context.Context, cfg *Config, log zerolog.Logger) (*Parameters, error) {
	store, closeStore := OpenParamStore(cfg)
	defer closeStore()
	return model.Load(ctx, store, log)
}

// SaveParameters writes p to the configured store.
func SaveParameters(ctx context.Context, cfg *Config, p *Parameters) error {
	store, closeStore := OpenParamStore(cfg)
	defer closeStore()
	return model.Save(ctx, store, p)
}

// DefaultParameters returns the untrained bundle.
func DefaultParameters() *Parameters { return model.Default() }

// NewExecutor builds the executor selected by cfg.Classifier.Backend.
func NewExecutor(cfg *Config, obs Observability, log zerolog.Logger) (Executor, error) {
	return executor.New(executor.Config{
		Backend: cfg.Classifier.Backend,
		Mode:    executor.SimulationMode(cfg.Simulator.Mode),
		Real: executor.RealConfig{
			Endpoint: cfg.RealBackend.Endpoint,
			Token:    cfg.RealBackend.Token,
			Timeout:  cfg.RealBackend.Timeout,
			Retries:  cfg.RealBackend.Retries,
		},
	}, obs, log)
}

// NewClassifier wires params and exec into a Classifier using the encoding
// and shot count from cfg. A nil obs disables metrics and logs.
func NewClassifier(cfg *Config, params *Parameters, exec Executor, obs Observability) (*Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	enc, err := features.NewEncoder(cfg.Classifier.FeatureWidth, features.Scheme(cfg.Classifier.Encoding))
	if err != nil {
		return nil, err
	}
	opts := []classifier.Option{
		classifier.WithShots(cfg.Classifier.Shots),
		classifier.WithEncoder(enc),
	}
	if obs != nil {
		opts = append(opts, classifier.WithObservability(obs))
	}
	return classifier.New(params, exec, opts...)
}

var _ ports.JobClassifier = (*Classifier)(nil)
