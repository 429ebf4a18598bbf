package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
)

// Reader answers queries from the published aggregate snapshot. Every call
// works on one complete set even if a refresh lands concurrently.
type Reader struct {
	snapshot *repository.Snapshot
	now      func() time.Time
}

// NewReader returns a reader over snapshot.
func NewReader(snapshot *repository.Snapshot) *Reader {
	return &Reader{snapshot: snapshot, now: time.Now}
}

func (r *Reader) current() (*model.AggregateSet, error) {
	set, ok := r.snapshot.Current()
	if !ok {
		return nil, repository.ErrNoAggregate
	}
	return set, nil
}

// Aggregates returns the window of counts matching f in feature, bucket order.
func (r *Reader) Aggregates(_ context.Context, f repository.Filter) (types.AggregatePage, error) {
	set, err := r.current()
	if err != nil {
		return types.AggregatePage{}, err
	}
	page, err := repository.Query(set, f)
	if err != nil {
		return types.AggregatePage{}, err
	}
	out := make([]types.Aggregate, len(page.Aggregates))
	for i, a := range page.Aggregates {
		out[i] = types.Aggregate{
			FeatureID:   a.FeatureID,
			Bucket:      a.Bucket,
			BucketStart: a.BucketStart,
			Count:       a.Count,
		}
	}
	return types.AggregatePage{Aggregates: out, Total: page.Total, Offset: f.Offset}, nil
}

// Features returns one summary per feature.
func (r *Reader) Features(_ context.Context) ([]types.FeatureSummary, error) {
	set, err := r.current()
	if err != nil {
		return nil, err
	}
	sums := set.Summaries()
	out := make([]types.FeatureSummary, len(sums))
	for i, s := range sums {
		out[i] = toSummary(s)
	}
	return out, nil
}

// Feature returns the summary of a single feature.
func (r *Reader) Feature(ctx context.Context, featureID string) (types.FeatureSummary, error) {
	set, err := r.current()
	if err != nil {
		return types.FeatureSummary{}, err
	}
	page, err := repository.Query(set, repository.Filter{FeatureID: featureID})
	if err != nil {
		return types.FeatureSummary{}, err
	}
	if page.Total == 0 {
		return types.FeatureSummary{}, fmt.Errorf("%w: %s", repository.ErrNotFound, featureID)
	}
	sub := model.AggregateSet{Aggregates: page.Aggregates}
	return toSummary(sub.Summaries()[0]), nil
}

// Status describes the set currently served. It never fails; an empty
// snapshot reports Available false.
func (r *Reader) Status(_ context.Context) types.Status {
	set, ok := r.snapshot.Current()
	if !ok {
		return types.Status{}
	}
	generated := set.GeneratedAt
	return types.Status{
		Available:   true,
		RunID:       set.RunID,
		Granularity: set.Granularity,
		GeneratedAt: &generated,
		AgeSeconds:  r.now().Sub(generated).Seconds(),
		EventCount:  set.EventCount,
		Aggregates:  len(set.Aggregates),
		Features:    len(set.Summaries()),
	}
}

func toSummary(s model.FeatureSummary) types.FeatureSummary {
	return types.FeatureSummary{
		FeatureID:   s.FeatureID,
		Total:       s.Total,
		Buckets:     s.Buckets,
		FirstBucket: s.FirstBucket,
		LastBucket:  s.LastBucket,
	}
}
