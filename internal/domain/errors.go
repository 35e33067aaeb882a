package domain

import "errors"

var (
	// ErrInvalidInput marks a payload that is not a well-formed record set.
	ErrInvalidInput = errors.New("qshield: invalid input")

	// ErrInvalidModel marks parameters that are dimensionally inconsistent or out of range.
	ErrInvalidModel = errors.New("qshield: invalid model")

	// ErrModelLoad marks a stored model bundle that could not be read or decoded.
	ErrModelLoad = errors.New("qshield: model load failed")

	ErrWidthMismatch      = errors.New("qshield: transform width mismatch")
	ErrInvalidShots       = errors.New("qshield: shots must be positive")
	ErrBackendUnavailable = errors.New("qshield: backend unavailable")
)
