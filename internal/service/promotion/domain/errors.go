package domain

import "errors"

var (
	ErrNoCandidate = errors.New("no promotion candidate")
	ErrInvalidRule = errors.New("invalid promotion rule")
)
