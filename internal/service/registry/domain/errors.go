package domain

import "errors"

var (
	ErrNotFound          = errors.New("model version not found")
	ErrRegistry          = errors.New("model registry unavailable")
	ErrIllegalTransition = errors.New("illegal stage transition")
	ErrNotSupported      = errors.New("operation not supported by this registry backend")
)
