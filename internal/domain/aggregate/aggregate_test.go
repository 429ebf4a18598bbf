package aggregate_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/domain/aggregate"
	"github.com/prajain321/tct-feature-tracker/internal/domain/bucket"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func day(d int, hour int) time.Time {
	return time.Date(2026, 10, d, hour, 0, 0, 0, time.UTC)
}

func mustBucketer(g bucket.Granularity) bucket.Bucketer {
	b, err := bucket.New(g, time.UTC)
	if err != nil {
		panic(err)
	}
	return b
}

func TestCompute(t *testing.T) {
	Convey("Given daily buckets", t, func() {
		b := mustBucketer(bucket.Day)

		Convey("When two A events and one B event share a day", func() {
			events := []model.UsageEvent{
				{FeatureID: "A", Timestamp: day(1, 9)},
				{FeatureID: "A", Timestamp: day(1, 17)},
				{FeatureID: "B", Timestamp: day(1, 12)},
			}
			got, err := aggregate.Compute(events, b)

			Convey("Then the counts should be A:2 and B:1", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []model.UsageAggregate{
					{FeatureID: "A", Bucket: "2026-10-01", BucketStart: day(1, 0), Count: 2},
					{FeatureID: "B", Bucket: "2026-10-01", BucketStart: day(1, 0), Count: 1},
				})
			})
		})

		Convey("When there are no events", func() {
			got, err := aggregate.Compute(nil, b)

			Convey("Then the result should be empty but not nil", func() {
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When events arrive out of order", func() {
			events := []model.UsageEvent{
				{FeatureID: "B", Timestamp: day(3, 1)},
				{FeatureID: "A", Timestamp: day(2, 1)},
				{FeatureID: "A", Timestamp: day(1, 1)},
			}
			got, err := aggregate.Compute(events, b)

			Convey("Then the result should be ordered by feature then bucket", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				So(got[0].Bucket, ShouldEqual, "2026-10-01")
				So(got[1].Bucket, ShouldEqual, "2026-10-02")
				So(got[2].FeatureID, ShouldEqual, "B")
			})
		})

		Convey("When one stored event is malformed", func() {
			events := []model.UsageEvent{
				{FeatureID: "A", Timestamp: day(1, 1)},
				{FeatureID: "", Timestamp: day(1, 2)},
			}
			got, err := aggregate.Compute(events, b)

			Convey("Then nothing should be returned", func() {
				So(got, ShouldBeNil)
				So(errors.Is(err, model.ErrInvalidEvent), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "event 1")
			})
		})
	})
}

func TestComputeProperties(t *testing.T) {
	Convey("Given a random batch of events", t, func() {
		rng := rand.New(rand.NewSource(42))
		features := []string{"search", "export", "filter", "share"}
		events := make([]model.UsageEvent, 500)
		want := map[string]int64{}
		for i := range events {
			f := features[rng.Intn(len(features))]
			events[i] = model.UsageEvent{
				ID:        fmt.Sprintf("e%d", i),
				FeatureID: f,
				Timestamp: day(1+rng.Intn(20), rng.Intn(24)),
			}
			want[f]++
		}

		for _, g := range []bucket.Granularity{bucket.Hour, bucket.Day, bucket.Week, bucket.Month} {
			b := mustBucketer(g)
			got, err := aggregate.Compute(events, b)
			So(err, ShouldBeNil)

			Convey(fmt.Sprintf("Then per-feature sums should equal event counts for %s buckets", g), func() {
				sums := map[string]int64{}
				for _, a := range got {
					So(a.Count, ShouldBeGreaterThan, 0)
					sums[a.FeatureID] += a.Count
				}
				So(sums, ShouldResemble, want)
			})

			Convey(fmt.Sprintf("Then recomputing %s buckets should be idempotent", g), func() {
				again, err := aggregate.Compute(events, b)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, got)
			})
		}
	})
}
