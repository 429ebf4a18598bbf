// Package sqlitestore implements the usage store on a single SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/pkg/metrics"
)

// timeLayout keeps a fixed fraction width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS usage_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    TEXT,
	feature_id  TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	metadata    TEXT
);
CREATE INDEX IF NOT EXISTS idx_usage_events_feature ON usage_events (feature_id);

CREATE TABLE IF NOT EXISTS usage_aggregates (
	feature_id   TEXT    NOT NULL,
	bucket       TEXT    NOT NULL,
	bucket_start TEXT    NOT NULL,
	count        INTEGER NOT NULL CHECK (count >= 0),
	PRIMARY KEY (feature_id, bucket)
);

CREATE TABLE IF NOT EXISTS aggregate_runs (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	run_id       TEXT    NOT NULL,
	granularity  TEXT    NOT NULL,
	generated_at TEXT    NOT NULL,
	event_count  INTEGER NOT NULL
);`

// Store is a repository.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path in WAL mode and
// applies the schema. A file that is not a SQLite database yields an error
// wrapping repository.ErrCorrupt.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, classify("open database", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("open database", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. The caller is responsible for the schema (see Migrate).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify("apply schema", err)
	}
	return nil
}

// Events returns all events in insertion order. A database without the
// events table is treated as empty.
func (s *Store) Events(ctx context.Context) ([]model.UsageEvent, error) {
	defer observe("events", time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, event_id, feature_id, occurred_at, metadata FROM usage_events ORDER BY seq`)
	if err != nil {
		if isNoSuchTable(err) {
			return []model.UsageEvent{}, nil
		}
		return nil, classify("query events", err)
	}
	defer rows.Close()

	events := make([]model.UsageEvent, 0)
	for rows.Next() {
		var (
			seq        int64
			eventID    sql.NullString
			featureID  string
			occurredAt string
			metadata   sql.NullString
		)
		if err := rows.Scan(&seq, &eventID, &featureID, &occurredAt, &metadata); err != nil {
			return nil, fmt.Errorf("%w: scan event row: %v", repository.ErrCorrupt, err)
		}

		ts, err := time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("%w: event seq %d: bad timestamp %q", repository.ErrCorrupt, seq, occurredAt)
		}

		ev := model.UsageEvent{ID: eventID.String, FeatureID: featureID, Timestamp: ts.UTC()}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("%w: event seq %d: metadata: %v", repository.ErrCorrupt, seq, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read events", err)
	}
	return events, nil
}

// Append inserts events in one transaction. Invalid events are rejected
// before anything is written.
func (s *Store) Append(ctx context.Context, events ...model.UsageEvent) (err error) {
	defer observe("append", time.Now())

	for i, ev := range events {
		if verr := ev.Validate(); verr != nil {
			return fmt.Errorf("event %d: %w", i, verr)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin append", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, ev := range events {
		var meta sql.NullString
		if len(ev.Metadata) > 0 {
			raw, merr := json.Marshal(ev.Metadata)
			if merr != nil {
				return fmt.Errorf("encode metadata: %w", merr)
			}
			meta = sql.NullString{String: string(raw), Valid: true}
		}
		var id sql.NullString
		if ev.ID != "" {
			id = sql.NullString{String: ev.ID, Valid: true}
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO usage_events (event_id, feature_id, occurred_at, metadata) VALUES (?, ?, ?, ?)`,
			id, ev.FeatureID, ev.Timestamp.UTC().Format(timeLayout), meta,
		); err != nil {
			return classify("insert event", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return classify("commit append", err)
	}
	return nil
}

// Replace swaps the aggregate rows and run metadata in a single transaction.
func (s *Store) Replace(ctx context.Context, set model.AggregateSet) (err error) {
	defer observe("replace", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin replace", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM usage_aggregates`); err != nil {
		return classify("clear aggregates", err)
	}

	for _, a := range set.Aggregates {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO usage_aggregates (feature_id, bucket, bucket_start, count) VALUES (?, ?, ?, ?)`,
			a.FeatureID, a.Bucket, a.BucketStart.UTC().Format(timeLayout), a.Count,
		); err != nil {
			return classify("insert aggregate", err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO aggregate_runs (id, run_id, granularity, generated_at, event_count) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET run_id = excluded.run_id, granularity = excluded.granularity,
		 generated_at = excluded.generated_at, event_count = excluded.event_count`,
		set.RunID, set.Granularity, set.GeneratedAt.UTC().Format(timeLayout), set.EventCount,
	); err != nil {
		return classify("record run", err)
	}

	if err = tx.Commit(); err != nil {
		return classify("commit replace", err)
	}
	return nil
}

// Load reads the run metadata and its aggregates inside one transaction.
func (s *Store) Load(ctx context.Context) (model.AggregateSet, error) {
	defer observe("load", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AggregateSet{}, classify("begin load", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		set         model.AggregateSet
		generatedAt string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT run_id, granularity, generated_at, event_count FROM aggregate_runs WHERE id = 1`,
	).Scan(&set.RunID, &set.Granularity, &generatedAt, &set.EventCount)
	switch {
	case errors.Is(err, sql.ErrNoRows), err != nil && isNoSuchTable(err):
		return model.AggregateSet{}, repository.ErrNoAggregate
	case err != nil:
		return model.AggregateSet{}, classify("load run", err)
	}
	if set.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return model.AggregateSet{}, fmt.Errorf("%w: run generated_at: %v", repository.ErrCorrupt, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT feature_id, bucket, bucket_start, count FROM usage_aggregates ORDER BY feature_id, bucket_start`)
	if err != nil {
		return model.AggregateSet{}, classify("query aggregates", err)
	}
	defer rows.Close()

	set.Aggregates = make([]model.UsageAggregate, 0)
	for rows.Next() {
		var (
			a     model.UsageAggregate
			start string
		)
		if err := rows.Scan(&a.FeatureID, &a.Bucket, &start, &a.Count); err != nil {
			return model.AggregateSet{}, fmt.Errorf("%w: scan aggregate row: %v", repository.ErrCorrupt, err)
		}
		if a.BucketStart, err = parseTime(start); err != nil {
			return model.AggregateSet{}, fmt.Errorf("%w: aggregate %s/%s: %v", repository.ErrCorrupt, a.FeatureID, a.Bucket, err)
		}
		set.Aggregates = append(set.Aggregates, a)
	}
	if err := rows.Err(); err != nil {
		return model.AggregateSet{}, classify("read aggregates", err)
	}
	if err := tx.Commit(); err != nil {
		return model.AggregateSet{}, classify("commit load", err)
	}
	return set, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// classify wraps err with op and marks SQLite corruption codes as repository.ErrCorrupt.
func classify(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %s: %v", repository.ErrCorrupt, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency("sqlite", op, float64(time.Since(start).Microseconds())/1000)
}

var _ repository.Store = (*Store)(nil)
