package ports

import (
	"context"
	"errors"
)

var ErrParamsNotFound = errors.New("qshield: model parameters not found")

// ParamStore holds the serialized model bundle.
type ParamStore interface {
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, data []byte) error
	Name() string
}
