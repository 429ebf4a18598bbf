package service

import (
	"errors"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
)

// Refresh failure kinds. Every error returned by Aggregator.Run wraps exactly
// one of them.
var (
	// ErrCorrupt marks stored data that cannot be decoded or violates the
	// event schema. Retrying does not help.
	ErrCorrupt = errors.New("refresh aborted: usage store corrupt")
	// ErrTransient marks I/O failures that may succeed on the next trigger.
	ErrTransient = errors.New("refresh aborted: transient store failure")
	// ErrAlreadyRunning is returned when a refresh is requested while one is in progress.
	ErrAlreadyRunning = errors.New("refresh already running")
)

// Outcome labels a Run error for logs, metrics and status reporting.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAlreadyRunning):
		return "skipped"
	case errors.Is(err, ErrCorrupt), errors.Is(err, repository.ErrCorrupt):
		return "corrupt"
	default:
		return "transient"
	}
}
