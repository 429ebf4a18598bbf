package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
	"github.com/prajain321/tct-feature-tracker/pkg/metrics"
)

const defaultReloadInterval = 30 * time.Second

// Filter narrows an aggregate query. Empty fields match everything and a
// zero Limit means no limit. Offset skips that many matching rows.
type Filter struct {
	FeatureID string
	Bucket    string
	Offset    int
	Limit     int
}

// Page is one window of a filtered query. Total counts every matching row,
// so callers can tell whether rows beyond the window exist.
type Page struct {
	Aggregates []model.UsageAggregate
	Total      int
}

// More reports whether matching rows remain after this page.
func (p Page) More(f Filter) bool {
	return f.Offset+len(p.Aggregates) < p.Total
}

// Snapshot serves the last loaded aggregate set to readers. The set is held
// behind an atomic pointer and replaced wholesale, so a reader holding a set
// never sees it change underneath.
type Snapshot struct {
	source         AggregateStore
	reloadInterval time.Duration
	logger         logger.Logger

	current atomic.Pointer[model.AggregateSet]
	reload  sync.Mutex

	lifecycle sync.Mutex
	running   atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewSnapshot creates a snapshot over source. Call Start to enable periodic reloads.
func NewSnapshot(source AggregateStore, opts ...Option) *Snapshot {
	s := &Snapshot{
		source:         source,
		reloadInterval: defaultReloadInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("snapshot")
	}
	return s
}

// Start performs an initial load and then reloads on the configured interval
// until ctx is done or Close is called. Starting a running snapshot is a
// no-op; a stopped one can be started again.
func (s *Snapshot) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running.Load() {
		return
	}

	if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrNoAggregate) {
		s.logger.Warn(ctx, "initial snapshot load failed", logger.Error(err))
	}

	stop := make(chan struct{})
	s.stopChan = stop
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		ticker := time.NewTicker(s.reloadInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrNoAggregate) {
					s.logger.Warn(ctx, "snapshot reload failed", logger.Error(err))
				}
			}
		}
	}()
}

// Reload loads the aggregate set from the source and publishes it. On error
// the previously published set stays in place.
func (s *Snapshot) Reload(ctx context.Context) error {
	s.reload.Lock()
	defer s.reload.Unlock()

	start := time.Now()
	set, err := s.source.Load(ctx)
	if err != nil {
		metrics.RecordSnapshotReload("error")
		if !errors.Is(err, ErrNoAggregate) {
			metrics.RecordStoreError("snapshot", ErrorType(err))
		}
		return err
	}

	if prev := s.current.Load(); prev != nil && prev.RunID == set.RunID {
		metrics.RecordSnapshotReload("unchanged")
		return nil
	}
	s.current.Store(&set)

	metrics.RecordSnapshotReload("published")
	metrics.RecordSnapshotReloadDuration(float64(time.Since(start).Milliseconds()))
	metrics.UpdateSnapshotGeneratedUnix(float64(set.GeneratedAt.Unix()))
	s.logger.Debug(ctx, "snapshot published",
		logger.String("run_id", set.RunID),
		logger.Int("aggregates", len(set.Aggregates)),
	)
	return nil
}

// Current returns the published set, or false if nothing was loaded yet.
func (s *Snapshot) Current() (*model.AggregateSet, bool) {
	set := s.current.Load()
	return set, set != nil
}

// Close stops the reload goroutine. The published set stays readable.
func (s *Snapshot) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stopChan != nil {
		close(s.stopChan)
		s.stopChan = nil
	}
	s.wg.Wait()
	return nil
}

// Query returns the window of aggregates in set that match f, in set order,
// together with the number of matching rows.
func Query(set *model.AggregateSet, f Filter) (Page, error) {
	if f.Limit < 0 {
		return Page{}, ErrInvalidLimit
	}
	if f.Offset < 0 {
		return Page{}, ErrInvalidOffset
	}
	page := Page{Aggregates: make([]model.UsageAggregate, 0)}
	if set == nil {
		return page, nil
	}
	for _, a := range set.Aggregates {
		if f.FeatureID != "" && a.FeatureID != f.FeatureID {
			continue
		}
		if f.Bucket != "" && a.Bucket != f.Bucket {
			continue
		}
		page.Total++
		if page.Total <= f.Offset {
			continue
		}
		if f.Limit > 0 && len(page.Aggregates) == f.Limit {
			continue
		}
		page.Aggregates = append(page.Aggregates, a)
	}
	return page, nil
}

// ErrorType labels a store error for metrics.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "io"
	}
}
