// Package aggregate turns raw usage events into per-feature, per-bucket counts.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/prajain321/tct-feature-tracker/internal/domain/bucket"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
)

type key struct {
	feature string
	bucket  string
}

// Compute groups events by feature and bucket and counts them. Every event is
// validated first; the first invalid one aborts the computation. The result is
// ordered by feature, then bucket start, so equal inputs give equal outputs.
func Compute(events []model.UsageEvent, b bucket.Bucketer) ([]model.UsageAggregate, error) {
	index := make(map[key]int, len(events))
	out := make([]model.UsageAggregate, 0)

	for i := range events {
		e := &events[i]
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		k := key{feature: e.FeatureID, bucket: b.ID(e.Timestamp)}
		if pos, ok := index[k]; ok {
			out[pos].Count++
			continue
		}
		index[k] = len(out)
		out = append(out, model.UsageAggregate{
			FeatureID:   k.feature,
			Bucket:      k.bucket,
			BucketStart: b.Start(e.Timestamp).UTC(),
			Count:       1,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FeatureID != out[j].FeatureID {
			return out[i].FeatureID < out[j].FeatureID
		}
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	return out, nil
}
