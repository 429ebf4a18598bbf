// Package service wires the refresh aggregator and the aggregate reader into
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/bucket"
	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
)

// Service implements the API dependencies for the usage read side and the
// manual refresh trigger.
type Service struct {
	mu sync.Mutex

	// Core components
	aggregator *Aggregator
	snapshot   *repository.Snapshot
	reader     *Reader

	// Configuration
	reloadInterval time.Duration
	aggOpts        []AggregatorOption

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReloadInterval sets how often the served snapshot is reloaded from the aggregate store.
func WithReloadInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reloadInterval = d
		}
	}
}

// WithAggregatorOptions passes options through to the refresh aggregator.
func WithAggregatorOptions(opts ...AggregatorOption) Option {
	return func(s *Service) {
		s.aggOpts = append(s.aggOpts, opts...)
	}
}

// New constructs a Service that refreshes from events into sink and serves
// reads from sink.
func New(events repository.EventSource, sink repository.AggregateStore, b bucket.Bucketer, opts ...Option) *Service {
	s := &Service{
		reloadInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	aggOpts := append([]AggregatorOption{WithAggregatorLogger(s.logger.Named("refresh"))}, s.aggOpts...)
	s.aggregator = NewAggregator(events, sink, b, aggOpts...)
	s.snapshot = repository.NewSnapshot(sink,
		repository.WithReloadInterval(s.reloadInterval),
		repository.WithLogger(s.logger.Named("snapshot")),
	)
	s.reader = NewReader(s.snapshot)
	return s
}

// Start loads the current aggregate set and begins periodic reloads.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.snapshot.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "usage service started", logger.Duration("reload_interval", s.reloadInterval))
	return nil
}

// Stop halts snapshot reloads.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	_ = s.snapshot.Close()
	s.started = false
	s.logger.Info(context.Background(), "usage service stopped")
}

// Refresh runs the aggregator and, on success, publishes the new set to readers.
func (s *Service) Refresh(ctx context.Context) (types.RefreshResult, error) {
	res, err := s.aggregator.Run(ctx)
	if err != nil {
		return types.RefreshResult{}, err
	}
	if err := s.snapshot.Reload(ctx); err != nil {
		s.logger.Warn(ctx, "snapshot reload after refresh failed",
			logger.String("run_id", res.RunID),
			logger.Error(err),
		)
	}
	return ToRefreshResult(res), nil
}

// Reload re-reads the aggregate store, e.g. after an external refresh.
func (s *Service) Reload(ctx context.Context) error {
	return s.snapshot.Reload(ctx)
}

// Aggregator exposes the refresh aggregator for scheduling.
func (s *Service) Aggregator() *Aggregator {
	return s.aggregator
}

// Aggregates returns the aggregate rows matching f.
func (s *Service) Aggregates(ctx context.Context, f repository.Filter) (types.AggregatePage, error) {
	return s.reader.Aggregates(ctx, f)
}

// Features returns per-feature summaries.
func (s *Service) Features(ctx context.Context) ([]types.FeatureSummary, error) {
	return s.reader.Features(ctx)
}

// Feature returns one feature's summary.
func (s *Service) Feature(ctx context.Context, featureID string) (types.FeatureSummary, error) {
	return s.reader.Feature(ctx, featureID)
}

// Status reports the served set and the last in-process refresh.
func (s *Service) Status(ctx context.Context) types.Status {
	st := s.reader.Status(ctx)
	st.Refreshing = s.aggregator.Running()
	st.LastRefresh = s.aggregator.Last()
	return st
}
