// Package bucket maps event timestamps onto discrete, named time intervals.
package bucket

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownGranularity is returned for granularities outside the supported set.
var ErrUnknownGranularity = errors.New("unknown bucket granularity")

// Granularity is the width of an aggregation bucket.
type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
	Day    Granularity = "day"
	Week   Granularity = "week"
	Month  Granularity = "month"
)

// ParseGranularity accepts the granularity names case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Minute, Hour, Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// Bucketer assigns timestamps to buckets of a fixed granularity in a fixed
// location. Bucket boundaries follow wall-clock time in that location.
// Minute and hour buckets are fixed-width instants: when a DST change
// repeats a wall-clock hour, each occurrence is its own bucket and the
// bucket id carries the UTC offset to tell them apart.
type Bucketer struct {
	granularity Granularity
	loc         *time.Location
}

// New returns a Bucketer. A nil location means UTC.
func New(g Granularity, loc *time.Location) (Bucketer, error) {
	if _, err := ParseGranularity(string(g)); err != nil {
		return Bucketer{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return Bucketer{granularity: g, loc: loc}, nil
}

// Granularity returns the configured bucket width.
func (b Bucketer) Granularity() Granularity { return b.granularity }

// Location returns the location bucket boundaries are computed in.
func (b Bucketer) Location() *time.Location { return b.loc }

// Start returns the first instant of the bucket containing t.
func (b Bucketer) Start(t time.Time) time.Time {
	t = t.In(b.loc)
	y, m, d := t.Date()
	switch b.granularity {
	case Minute:
		return truncateLocal(t, time.Minute)
	case Hour:
		return truncateLocal(t, time.Hour)
	case Week:
		// ISO weeks start on Monday.
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, b.loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, b.loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, b.loc)
	}
}

// ID returns the stable identifier of the bucket containing t.
func (b Bucketer) ID(t time.Time) string {
	start := b.Start(t)
	switch b.granularity {
	case Minute:
		return start.Format("2006-01-02T15:04Z07:00")
	case Hour:
		return start.Format("2006-01-02T15Z07:00")
	case Week:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case Month:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}

// truncateLocal rounds t down to a multiple of d on t's own wall clock,
// keeping the result on the same side of any offset change.
func truncateLocal(t time.Time, d time.Duration) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	return t.Add(shift).Truncate(d).Add(-shift).In(t.Location())
}
