package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func sampleSet(runID string) model.AggregateSet {
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	return model.AggregateSet{
		RunID:       runID,
		Granularity: "day",
		GeneratedAt: day.Add(time.Hour),
		EventCount:  6,
		Aggregates: []model.UsageAggregate{
			{FeatureID: "A", Bucket: "2026-10-14", BucketStart: day.AddDate(0, 0, -1), Count: 1},
			{FeatureID: "A", Bucket: "2026-10-15", BucketStart: day, Count: 2},
			{FeatureID: "B", Bucket: "2026-10-15", BucketStart: day, Count: 3},
		},
	}
}

func TestSnapshot(t *testing.T) {
	Convey("Given a snapshot over an in-memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		snap := repository.NewSnapshot(store,
			repository.WithLogger(logger.Discard()),
			repository.WithReloadInterval(10*time.Millisecond),
		)
		defer snap.Close()

		Convey("When nothing was ever written", func() {
			err := snap.Reload(ctx)

			Convey("Then reload reports no aggregate and nothing is published", func() {
				So(errors.Is(err, repository.ErrNoAggregate), ShouldBeTrue)
				_, ok := snap.Current()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a set is written and reloaded", func() {
			So(store.Replace(ctx, sampleSet("run-1")), ShouldBeNil)
			So(snap.Reload(ctx), ShouldBeNil)

			Convey("Then the set is published", func() {
				set, ok := snap.Current()
				So(ok, ShouldBeTrue)
				So(set.RunID, ShouldEqual, "run-1")
				So(set.Aggregates, ShouldHaveLength, 3)
			})

			Convey("Then a reload of the same run keeps the published pointer", func() {
				before, _ := snap.Current()
				So(snap.Reload(ctx), ShouldBeNil)
				after, _ := snap.Current()
				So(after, ShouldPointTo, before)
			})
		})

		Convey("When the source starts failing after a publish", func() {
			src := &flakySource{set: sampleSet("run-1")}
			s2 := repository.NewSnapshot(src, repository.WithLogger(logger.Discard()))
			So(s2.Reload(ctx), ShouldBeNil)
			src.err = repository.ErrCorrupt
			err := s2.Reload(ctx)

			Convey("Then the last good set stays published", func() {
				So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
				set, ok := s2.Current()
				So(ok, ShouldBeTrue)
				So(set.RunID, ShouldEqual, "run-1")
			})
		})

		Convey("When started with a periodic reload", func() {
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			snap.Start(runCtx)
			So(store.Replace(ctx, sampleSet("run-2")), ShouldBeNil)

			Convey("Then the new set is picked up without an explicit reload", func() {
				deadline := time.Now().Add(2 * time.Second)
				var runID string
				for time.Now().Before(deadline) {
					if set, ok := snap.Current(); ok {
						runID = set.RunID
						if runID == "run-2" {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(runID, ShouldEqual, "run-2")
			})
		})
	})
}

func TestSnapshotRestart(t *testing.T) {
	Convey("Given a snapshot that was started and closed", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		snap := repository.NewSnapshot(store,
			repository.WithLogger(logger.Discard()),
			repository.WithReloadInterval(10*time.Millisecond),
		)
		snap.Start(ctx)
		So(snap.Close(), ShouldBeNil)
		So(snap.Close(), ShouldBeNil)

		Convey("When it is started again", func() {
			snap.Start(ctx)
			defer snap.Close()
			So(store.Replace(ctx, sampleSet("run-3")), ShouldBeNil)

			Convey("Then periodic reloads resume", func() {
				So(eventually(func() bool {
					set, ok := snap.Current()
					return ok && set.RunID == "run-3"
				}), ShouldBeTrue)
			})
		})

		Convey("When its context ends and it is started with a new one", func() {
			runCtx, cancel := context.WithCancel(ctx)
			snap.Start(runCtx)
			cancel()
			So(eventually(func() bool {
				snap.Start(ctx)
				So(store.Replace(ctx, sampleSet("run-4")), ShouldBeNil)
				set, ok := snap.Current()
				return ok && set.RunID == "run-4"
			}), ShouldBeTrue)

			So(store.Replace(ctx, sampleSet("run-5")), ShouldBeNil)
			So(eventually(func() bool {
				set, ok := snap.Current()
				return ok && set.RunID == "run-5"
			}), ShouldBeTrue)
			So(snap.Close(), ShouldBeNil)
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestQuery(t *testing.T) {
	Convey("Given a published aggregate set", t, func() {
		set := sampleSet("run-1")

		Convey("Filtering by feature returns that feature's buckets in order", func() {
			got, err := repository.Query(&set, repository.Filter{FeatureID: "A"})
			So(err, ShouldBeNil)
			So(got.Total, ShouldEqual, 2)
			So(got.Aggregates, ShouldHaveLength, 2)
			So(got.Aggregates[0].Bucket, ShouldEqual, "2026-10-14")
			So(got.Aggregates[1].Bucket, ShouldEqual, "2026-10-15")
		})

		Convey("Filtering by bucket returns every feature in it", func() {
			got, err := repository.Query(&set, repository.Filter{Bucket: "2026-10-15"})
			So(err, ShouldBeNil)
			So(got.Aggregates, ShouldHaveLength, 2)
			So(got.Aggregates[0].FeatureID, ShouldEqual, "A")
			So(got.Aggregates[1].FeatureID, ShouldEqual, "B")
		})

		Convey("Combining filters narrows to one row", func() {
			got, err := repository.Query(&set, repository.Filter{FeatureID: "B", Bucket: "2026-10-15"})
			So(err, ShouldBeNil)
			So(got.Aggregates, ShouldResemble, []model.UsageAggregate{set.Aggregates[2]})
		})

		Convey("A limit truncates the window but not the total", func() {
			f := repository.Filter{Limit: 1}
			got, err := repository.Query(&set, f)
			So(err, ShouldBeNil)
			So(got.Aggregates, ShouldHaveLength, 1)
			So(got.Total, ShouldEqual, 3)
			So(got.More(f), ShouldBeTrue)
		})

		Convey("Offset and limit walk the whole set", func() {
			var seen []model.UsageAggregate
			f := repository.Filter{Limit: 2}
			for {
				got, err := repository.Query(&set, f)
				So(err, ShouldBeNil)
				seen = append(seen, got.Aggregates...)
				if !got.More(f) {
					break
				}
				f.Offset += len(got.Aggregates)
			}
			So(seen, ShouldResemble, set.Aggregates)
		})

		Convey("An offset past the end yields an empty window", func() {
			got, err := repository.Query(&set, repository.Filter{Offset: 10})
			So(err, ShouldBeNil)
			So(got.Aggregates, ShouldBeEmpty)
			So(got.Total, ShouldEqual, 3)
		})

		Convey("Negative limits and offsets are rejected", func() {
			_, err := repository.Query(&set, repository.Filter{Limit: -1})
			So(err, ShouldEqual, repository.ErrInvalidLimit)
			_, err = repository.Query(&set, repository.Filter{Offset: -1})
			So(err, ShouldEqual, repository.ErrInvalidOffset)
		})

		Convey("A nil set yields an empty result", func() {
			got, err := repository.Query(nil, repository.Filter{})
			So(err, ShouldBeNil)
			So(got.Aggregates, ShouldNotBeNil)
			So(got.Aggregates, ShouldBeEmpty)
			So(got.Total, ShouldEqual, 0)
		})
	})
}

func TestErrorType(t *testing.T) {
	Convey("Store errors are labelled for metrics", t, func() {
		So(repository.ErrorType(repository.ErrCorrupt), ShouldEqual, "corrupt")
		So(repository.ErrorType(context.Canceled), ShouldEqual, "cancelled")
		So(repository.ErrorType(errors.New("disk full")), ShouldEqual, "io")
	})
}

type flakySource struct {
	set model.AggregateSet
	err error
}

func (f *flakySource) Replace(_ context.Context, set model.AggregateSet) error {
	f.set = set
	return nil
}

func (f *flakySource) Load(context.Context) (model.AggregateSet, error) {
	if f.err != nil {
		return model.AggregateSet{}, f.err
	}
	return f.set, nil
}
