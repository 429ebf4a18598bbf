package repository

import (
	"time"

	"github.com/prajain321/tct-feature-tracker/pkg/logger"
)

// Option applies a configuration option to the Snapshot.
type Option func(*Snapshot)

// WithReloadInterval sets how often the snapshot is reloaded from its source.
func WithReloadInterval(interval time.Duration) Option {
	return func(s *Snapshot) {
		if interval > 0 {
			s.reloadInterval = interval
		}
	}
}

// WithLogger sets a custom logger for the snapshot.
func WithLogger(l logger.Logger) Option {
	return func(s *Snapshot) {
		if l != nil {
			s.logger = l
		}
	}
}
