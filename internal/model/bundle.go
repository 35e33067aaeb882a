package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
	"github.com/rs/zerolog"
)

// bundle is the JSON wire form of Parameters. Pointer fields distinguish an
// absent key from a zero value.
type bundle struct {
	NumQubits     *int       `json:"num_qubits"`
	NumLayers     *int       `json:"num_layers"`
	Parameters    []float64  `json:"parameters"`
	FeatureScaler *scalerDoc `json:"feature_scaler"`
	Threshold     *float64   `json:"threshold"`
}

type scalerDoc struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Decode parses a model bundle. Missing shape fields fall back to 4 qubits,
// 2 layers, threshold 0.5 and an identity scaler. Undecodable input fails with
// ErrModelLoad; a decodable but inconsistent bundle fails with both
// ErrModelLoad and ErrInvalidModel.
func Decode(data []byte) (*Parameters, error) {
	var doc bundle
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", domain.ErrModelLoad, err)
	}

	p := &Parameters{
		QubitCount:   DefaultQubits,
		LayerCount:   DefaultLayers,
		Coefficients: doc.Parameters,
		Threshold:    DefaultThreshold,
	}
	if doc.NumQubits != nil {
		p.QubitCount = *doc.NumQubits
	}
	if doc.NumLayers != nil {
		p.LayerCount = *doc.NumLayers
	}
	if doc.Threshold != nil {
		p.Threshold = *doc.Threshold
	}
	if p.Coefficients == nil {
		p.Coefficients = []float64{}
	}

	if err := p.checkShape(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelLoad, err)
	}
	p.FeatureMean = make([]float64, p.QubitCount)
	p.FeatureScale = ones(p.QubitCount)
	if doc.FeatureScaler != nil {
		if doc.FeatureScaler.Mean != nil {
			p.FeatureMean = doc.FeatureScaler.Mean
		}
		if doc.FeatureScaler.Scale != nil {
			p.FeatureScale = doc.FeatureScaler.Scale
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelLoad, err)
	}
	return p, nil
}

// Encode renders a bundle as indented JSON. float64 values round-trip exactly.
func Encode(p *Parameters) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	qubits, layers, threshold := p.QubitCount, p.LayerCount, p.Threshold
	doc := bundle{
		NumQubits:     &qubits,
		NumLayers:     &layers,
		Parameters:    p.Coefficients,
		FeatureScaler: &scalerDoc{Mean: p.FeatureMean, Scale: p.FeatureScale},
		Threshold:     &threshold,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Load reads the bundle from store. A missing bundle is not an error: the
// default parameters are returned and a warning is logged.
func Load(ctx context.Context, store ports.ParamStore, log zerolog.Logger) (*Parameters, error) {
	data, err := store.Get(ctx)
	if errors.Is(err, ports.ErrParamsNotFound) {
		log.Warn().Str("store", store.Name()).Msg("model bundle not found, using default parameters")
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrModelLoad, store.Name(), err)
	}

	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("store", store.Name()).
		Int("qubits", p.QubitCount).
		Int("layers", p.LayerCount).
		Float64("threshold", p.Threshold).
		Msg("model bundle loaded")
	return p, nil
}

// Save validates and writes the bundle to store.
func Save(ctx context.Context, store ports.ParamStore, p *Parameters) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, data); err != nil {
		return fmt.Errorf("write %s: %w", store.Name(), err)
	}
	return nil
}
