// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// UsageEvent is a single recorded feature interaction. Events are appended by
// tracking instrumentation and never mutated afterwards.
type UsageEvent struct {
	ID        string    `json:"id,omitempty"` // optional, assigned by the producer
	FeatureID string    `json:"feature_id"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// Validate checks the event against the stored-event schema.
func (e UsageEvent) Validate() error {
	if strings.TrimSpace(e.FeatureID) == "" {
		return fmt.Errorf("%w: missing feature_id", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp for feature %q", ErrInvalidEvent, e.FeatureID)
	}
	if err := e.Metadata.Validate(); err != nil {
		return fmt.Errorf("%w: feature %q: %w", ErrInvalidEvent, e.FeatureID, err)
	}
	return nil
}

// UsageAggregate is the derived count of events for one feature in one bucket.
type UsageAggregate struct {
	FeatureID   string    `json:"feature_id"`
	Bucket      string    `json:"bucket"`
	BucketStart time.Time `json:"bucket_start"`
	Count       int64     `json:"count"`
}

// AggregateSet is the unit the aggregator replaces on every run.
// Aggregates are ordered by FeatureID, then BucketStart.
type AggregateSet struct {
	RunID       string           `json:"run_id"`
	Granularity string           `json:"granularity"`
	GeneratedAt time.Time        `json:"generated_at"`
	EventCount  int64            `json:"event_count"`
	Aggregates  []UsageAggregate `json:"aggregates"`
}

// FeatureSummary rolls up every bucket of a single feature.
type FeatureSummary struct {
	FeatureID   string
	Total       int64
	Buckets     int
	FirstBucket string
	LastBucket  string
}

// Summaries returns one summary per feature in FeatureID order.
func (s *AggregateSet) Summaries() []FeatureSummary {
	out := make([]FeatureSummary, 0)
	for _, a := range s.Aggregates {
		n := len(out)
		if n == 0 || out[n-1].FeatureID != a.FeatureID {
			out = append(out, FeatureSummary{FeatureID: a.FeatureID, FirstBucket: a.Bucket})
			n++
		}
		sum := &out[n-1]
		sum.Total += a.Count
		sum.Buckets++
		sum.LastBucket = a.Bucket
	}
	return out
}
