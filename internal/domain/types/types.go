// Package types contains the read shapes shared by the service and HTTP layers.
package types

import "time"

// Aggregate is one (feature, bucket) count as served to readers.
type Aggregate struct {
	FeatureID   string    `json:"feature_id"`
	Bucket      string    `json:"bucket"`
	BucketStart time.Time `json:"bucket_start"`
	Count       int64     `json:"count"`
}

// AggregatePage is one window of an aggregate query. Total counts every
// matching row regardless of offset and limit.
type AggregatePage struct {
	Aggregates []Aggregate
	Total      int
	Offset     int
}

// More reports whether matching rows remain after this page.
func (p AggregatePage) More() bool {
	return p.Offset+len(p.Aggregates) < p.Total
}

// FeatureSummary rolls up all buckets of one feature.
type FeatureSummary struct {
	FeatureID   string `json:"feature_id"`
	Total       int64  `json:"total"`
	Buckets     int    `json:"buckets"`
	FirstBucket string `json:"first_bucket"`
	LastBucket  string `json:"last_bucket"`
}

// RefreshResult describes a completed refresh run.
type RefreshResult struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Events      int       `json:"events"`
	Aggregates  int       `json:"aggregates"`
	Features    int       `json:"features"`
	DurationMS  int64     `json:"duration_ms"`
}

// LastRefresh is the outcome of the most recent in-process refresh attempt.
type LastRefresh struct {
	FinishedAt time.Time      `json:"finished_at"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Result     *RefreshResult `json:"result,omitempty"`
}

// Status reports what the read side is currently serving.
type Status struct {
	Available   bool         `json:"available"`
	RunID       string       `json:"run_id,omitempty"`
	Granularity string       `json:"granularity,omitempty"`
	GeneratedAt *time.Time   `json:"generated_at,omitempty"`
	AgeSeconds  float64      `json:"age_seconds,omitempty"`
	EventCount  int64        `json:"event_count"`
	Aggregates  int          `json:"aggregates"`
	Features    int          `json:"features"`
	Refreshing  bool         `json:"refreshing"`
	LastRefresh *LastRefresh `json:"last_refresh,omitempty"`
}
