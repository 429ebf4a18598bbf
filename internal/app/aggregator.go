package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/aggregate"
	"github.com/prajain321/tct-feature-tracker/internal/domain/bucket"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
	"github.com/prajain321/tct-feature-tracker/pkg/metrics"
)

// Result summarizes a successful refresh run.
type Result struct {
	RunID       string
	Granularity bucket.Granularity
	GeneratedAt time.Time
	Events      int
	Aggregates  int
	Features    int
	Duration    time.Duration
}

// Aggregator recomputes the aggregate view from raw events. Each Run is a
// full recompute followed by a single Replace; nothing is carried between
// runs except the last outcome kept for status reporting.
type Aggregator struct {
	events   repository.EventSource
	sink     repository.AggregateStore
	bucketer bucket.Bucketer
	logger   logger.Logger
	now      func() time.Time
	newRunID func() string

	running atomic.Bool

	lastMu sync.RWMutex
	last   *types.LastRefresh
}

// AggregatorOption applies a configuration option to the Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets a custom logger for refresh runs.
func WithAggregatorLogger(l logger.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp GeneratedAt.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(next func() string) AggregatorOption {
	return func(a *Aggregator) {
		if next != nil {
			a.newRunID = next
		}
	}
}

// NewAggregator builds an aggregator reading from events and publishing to sink.
func NewAggregator(events repository.EventSource, sink repository.AggregateStore, b bucket.Bucketer, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		events:   events,
		sink:     sink,
		bucketer: b,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("refresh")
	}
	return a
}

// Run performs one refresh. On any error the aggregate store is left as it
// was; the error wraps ErrCorrupt, ErrTransient or ErrAlreadyRunning.
func (a *Aggregator) Run(ctx context.Context) (Result, error) {
	if !a.running.CompareAndSwap(false, true) {
		metrics.RecordScheduledSkip()
		return Result{}, ErrAlreadyRunning
	}
	defer a.running.Store(false)

	start := time.Now()
	runID := a.newRunID()
	a.logger.Info(ctx, "refresh started",
		logger.String("run_id", runID),
		logger.String("granularity", string(a.bucketer.Granularity())),
	)

	res, err := a.run(ctx, runID)
	res.Duration = time.Since(start)
	outcome := Outcome(err)

	metrics.RecordRefreshRun(outcome)
	metrics.RecordRefreshDuration(float64(res.Duration.Microseconds()) / 1000)
	a.record(outcome, res, err)

	if err != nil {
		metrics.RecordStoreError("refresh", outcome)
		a.logger.Error(ctx, "refresh failed",
			logger.String("run_id", runID),
			logger.String("outcome", outcome),
			logger.Duration("took", res.Duration),
			logger.Error(err),
		)
		return res, err
	}

	metrics.UpdateRefreshResult(res.Events, res.Aggregates, res.Features)
	metrics.UpdateRefreshLastSuccess(float64(res.GeneratedAt.Unix()))
	a.logger.Info(ctx, "refresh finished",
		logger.String("run_id", runID),
		logger.Int("events", res.Events),
		logger.Int("aggregates", res.Aggregates),
		logger.Int("features", res.Features),
		logger.Duration("took", res.Duration),
	)
	return res, nil
}

func (a *Aggregator) run(ctx context.Context, runID string) (Result, error) {
	res := Result{RunID: runID, Granularity: a.bucketer.Granularity()}

	events, err := a.events.Events(ctx)
	if err != nil {
		return res, classify("read events", err)
	}

	aggs, err := aggregate.Compute(events, a.bucketer)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	set := model.AggregateSet{
		RunID:       runID,
		Granularity: string(a.bucketer.Granularity()),
		GeneratedAt: a.now().UTC(),
		EventCount:  int64(len(events)),
		Aggregates:  aggs,
	}
	if err := ctx.Err(); err != nil {
		return res, classify("before replace", err)
	}
	if err := a.sink.Replace(ctx, set); err != nil {
		return res, classify("replace aggregates", err)
	}

	res.GeneratedAt = set.GeneratedAt
	res.Events = len(events)
	res.Aggregates = len(aggs)
	res.Features = len(set.Summaries())
	return res, nil
}

// Running reports whether a refresh is in progress.
func (a *Aggregator) Running() bool {
	return a.running.Load()
}

// Last returns the outcome of the most recent run, or nil if none finished.
func (a *Aggregator) Last() *types.LastRefresh {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	if a.last == nil {
		return nil
	}
	cp := *a.last
	return &cp
}

func (a *Aggregator) record(outcome string, res Result, err error) {
	last := &types.LastRefresh{FinishedAt: a.now().UTC(), Status: outcome}
	if err != nil {
		last.Error = err.Error()
	} else {
		rr := ToRefreshResult(res)
		last.Result = &rr
	}
	a.lastMu.Lock()
	a.last = last
	a.lastMu.Unlock()
}

// ToRefreshResult converts a run result to its API shape.
func ToRefreshResult(res Result) types.RefreshResult {
	return types.RefreshResult{
		RunID:       res.RunID,
		GeneratedAt: res.GeneratedAt,
		Events:      res.Events,
		Aggregates:  res.Aggregates,
		Features:    res.Features,
		DurationMS:  res.Duration.Milliseconds(),
	}
}

func classify(op string, err error) error {
	if errors.Is(err, repository.ErrCorrupt) {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
