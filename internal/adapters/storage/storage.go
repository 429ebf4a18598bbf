// Package storage opens the usage store and aggregate sink selected by config.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository/filestore"
	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository/redisstore"
	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository/sqlitestore"
	"github.com/prajain321/tct-feature-tracker/internal/config"
)

// Watcher notifies when the aggregate artifact changes outside this process.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Stores bundles the opened backends.
type Stores struct {
	Events   repository.EventSource
	Appender repository.EventAppender
	Sink     repository.AggregateStore
	// Watcher is set when the sink can signal external replacements.
	Watcher Watcher

	closers []func() error
}

// Open opens the configured backends. Errors from a corrupt store wrap
// repository.ErrCorrupt.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{}

	var primary repository.Store
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		primary = db
	case config.DriverFile:
		fs := filestore.New(cfg.EventsFile, cfg.AggregatesFile)
		s.Watcher = fs
		primary = fs
	case config.DriverMemory:
		primary = repository.NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
	s.closers = append(s.closers, primary.Close)
	s.Events, s.Appender, s.Sink = primary, primary, primary

	if cfg.AggregateSink == config.SinkRedis {
		rs, err := redisstore.Open(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open redis sink: %w", err)
		}
		s.Sink = rs
		s.Watcher = nil
		s.closers = append(s.closers, rs.Close)
	}
	return s, nil
}

// Close closes every opened backend.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
