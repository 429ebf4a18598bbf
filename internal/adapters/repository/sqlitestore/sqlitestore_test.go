package sqlitestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
)

var day = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func testSet(runID string, aggs ...model.UsageAggregate) model.AggregateSet {
	return model.AggregateSet{
		RunID:       runID,
		Granularity: "day",
		GeneratedAt: day.Add(90 * time.Minute),
		EventCount:  3,
		Aggregates:  aggs,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	Convey("Given a fresh SQLite file", t, func() {
		ctx := context.Background()
		store, err := Open(ctx, filepath.Join(t.TempDir(), "data", "usage.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("When nothing has been recorded", func() {
			events, err := store.Events(ctx)
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)

			_, err = store.Load(ctx)
			So(errors.Is(err, repository.ErrNoAggregate), ShouldBeTrue)
		})

		Convey("When events are appended", func() {
			in := []model.UsageEvent{
				{ID: "e1", FeatureID: "A", Timestamp: day.Add(time.Hour), Metadata: model.Metadata{
					"plan":    model.StringValue("pro"),
					"seats":   model.IntValue(3),
					"ratio":   model.FloatValue(0.5),
					"trusted": model.BoolValue(true),
				}},
				{FeatureID: "B", Timestamp: day.Add(2*time.Hour + 15*time.Nanosecond)},
			}
			So(store.Append(ctx, in...), ShouldBeNil)

			Convey("Then they are read back unchanged and in order", func() {
				out, err := store.Events(ctx)
				So(err, ShouldBeNil)
				So(out, ShouldResemble, in)
			})
		})

		Convey("When an invalid event is appended", func() {
			err := store.Append(ctx,
				model.UsageEvent{FeatureID: "A", Timestamp: day},
				model.UsageEvent{Timestamp: day},
			)

			Convey("Then nothing is written", func() {
				So(errors.Is(err, model.ErrInvalidEvent), ShouldBeTrue)
				out, _ := store.Events(ctx)
				So(out, ShouldBeEmpty)
			})
		})

		Convey("When aggregate sets are replaced twice", func() {
			first := testSet("run-1",
				model.UsageAggregate{FeatureID: "A", Bucket: "2026-10-15", BucketStart: day, Count: 2},
				model.UsageAggregate{FeatureID: "B", Bucket: "2026-10-15", BucketStart: day, Count: 1},
			)
			second := testSet("run-2",
				model.UsageAggregate{FeatureID: "C", Bucket: "2026-10-14", BucketStart: day.AddDate(0, 0, -1), Count: 4},
			)
			So(store.Replace(ctx, first), ShouldBeNil)
			So(store.Replace(ctx, second), ShouldBeNil)

			Convey("Then only the latest set is visible", func() {
				got, err := store.Load(ctx)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, second)
			})
		})

		Convey("When an empty set is written", func() {
			So(store.Replace(ctx, testSet("run-empty")), ShouldBeNil)

			Convey("Then it loads as present and empty", func() {
				got, err := store.Load(ctx)
				So(err, ShouldBeNil)
				So(got.RunID, ShouldEqual, "run-empty")
				So(got.Aggregates, ShouldNotBeNil)
				So(got.Aggregates, ShouldBeEmpty)
			})
		})

		Convey("When a stored event row is malformed", func() {
			_, err := store.db.ExecContext(ctx,
				`INSERT INTO usage_events (feature_id, occurred_at) VALUES ('A', 'yesterday')`)
			So(err, ShouldBeNil)

			Convey("Then reading events reports corruption", func() {
				_, err := store.Events(ctx)
				So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
			})
		})

		Convey("When stored metadata is not an object of scalars", func() {
			_, err := store.db.ExecContext(ctx,
				`INSERT INTO usage_events (feature_id, occurred_at, metadata) VALUES ('A', ?, '{"tags":["x"]}')`,
				day.Format(timeLayout))
			So(err, ShouldBeNil)

			Convey("Then reading events reports corruption", func() {
				_, err := store.Events(ctx)
				So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
			})
		})
	})
}

func TestOpenCorruptFile(t *testing.T) {
	Convey("Given a file that is not a SQLite database", t, func() {
		path := filepath.Join(t.TempDir(), "usage.db")
		garbage := make([]byte, 8192)
		for i := range garbage {
			garbage[i] = byte('x')
		}
		So(os.WriteFile(path, garbage, 0o600), ShouldBeNil)

		Convey("Opening it reports corruption", func() {
			_, err := Open(context.Background(), path)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
		})
	})
}

func TestReplaceRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	store := New(db)
	set := testSet("run-1",
		model.UsageAggregate{FeatureID: "A", Bucket: "2026-10-15", BucketStart: day, Count: 2},
		model.UsageAggregate{FeatureID: "B", Bucket: "2026-10-15", BucketStart: day, Count: 1},
	)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM usage_aggregates").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO usage_aggregates").
		WithArgs("A", "2026-10-15", day.Format(timeLayout), int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO usage_aggregates").
		WithArgs("B", "2026-10-15", day.Format(timeLayout), int64(1)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = store.Replace(context.Background(), set)
	if err == nil {
		t.Fatal("expected Replace to fail")
	}
	if errors.Is(err, repository.ErrCorrupt) {
		t.Errorf("plain I/O error should not be classified as corruption: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestReplaceCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	store := New(db)
	set := testSet("run-1",
		model.UsageAggregate{FeatureID: "A", Bucket: "2026-10-15", BucketStart: day, Count: 2},
	)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM usage_aggregates").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO usage_aggregates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO aggregate_runs").
		WithArgs("run-1", "day", set.GeneratedAt.Format(timeLayout), int64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.Replace(context.Background(), set); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestLoadWithoutRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT run_id, granularity, generated_at, event_count FROM aggregate_runs").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "granularity", "generated_at", "event_count"}))
	mock.ExpectRollback()

	_, err = New(db).Load(context.Background())
	if !errors.Is(err, repository.ErrNoAggregate) {
		t.Fatalf("expected ErrNoAggregate, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestEventsQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT seq, event_id, feature_id, occurred_at, metadata FROM usage_events").
		WillReturnError(errors.New("database is locked"))

	_, err = New(db).Events(context.Background())
	if err == nil || errors.Is(err, repository.ErrCorrupt) {
		t.Fatalf("expected a transient error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
