package repository

import "errors"

// Sentinel kinds for usage store errors.
var (
	ErrCorrupt       = errors.New("usage store corrupt")
	ErrNoAggregate   = errors.New("no aggregate set available")
	ErrNotFound      = errors.New("feature not found")
	ErrInvalidLimit  = errors.New("invalid query limit")
	ErrInvalidOffset = errors.New("invalid query offset")
)
