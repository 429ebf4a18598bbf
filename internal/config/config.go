// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Defaults come from New; Load layers a YAML file and TCT_ env vars on top.
// - Validate reports every problem, each wrapping ErrInvalidConfig.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/prajain321/tct-feature-tracker/internal/domain/bucket"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// Aggregate sinks.
const (
	SinkSame  = "same"
	SinkRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects where usage events live: sqlite, file or memory.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// EventsFile and AggregatesFile are used by the file driver.
	EventsFile     string `koanf:"events_file"`
	AggregatesFile string `koanf:"aggregates_file"`

	// AggregateSink is "same" to keep aggregates beside the events, or
	// "redis" to publish them to RedisKey.
	AggregateSink string `koanf:"aggregate_sink"`
	RedisURL      string `koanf:"redis_url"`
	RedisKey      string `koanf:"redis_key"`

	// Bucket is the aggregation granularity: minute, hour, day, week, month.
	Bucket string `koanf:"bucket"`

	// Timezone names the IANA zone bucket boundaries are computed in.
	Timezone string `koanf:"timezone"`

	// Schedule is a standard 5-field cron spec for in-process refreshes.
	// Empty disables the schedule.
	Schedule string `koanf:"schedule"`

	// SnapshotInterval is how often the server reloads the aggregate set.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`

	// MaxQueryLimit caps GET /aggregates?limit.
	MaxQueryLimit int `koanf:"max_query_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		StoreDriver:      DriverSQLite,
		SQLitePath:       "data/usage.db",
		EventsFile:       "data/events.jsonl",
		AggregatesFile:   "data/aggregates.json",
		AggregateSink:    SinkSame,
		RedisURL:         "redis://localhost:6379/0",
		RedisKey:         "tct:usage:aggregates",
		Bucket:           string(bucket.Day),
		Timezone:         "UTC",
		Schedule:         "*/30 * * * *",
		SnapshotInterval: 30 * time.Second,
		MaxQueryLimit:    1000,
	}
}

// Validate checks every field and joins all problems found.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("log_level %q must be debug, info, warn or error", c.LogLevel)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "text", "json":
	default:
		fail("log_format %q must be text or json", c.LogFormat)
	}
	if strings.TrimSpace(c.Addr) == "" {
		fail("addr must not be empty")
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			fail("sqlite_path must not be empty")
		}
	case DriverFile:
		if c.EventsFile == "" || c.AggregatesFile == "" {
			fail("events_file and aggregates_file must not be empty")
		}
	case DriverMemory:
	default:
		fail("store_driver %q must be sqlite, file or memory", c.StoreDriver)
	}

	switch c.AggregateSink {
	case SinkSame:
	case SinkRedis:
		if c.RedisURL == "" {
			fail("redis_url must not be empty when aggregate_sink is redis")
		}
	default:
		fail("aggregate_sink %q must be same or redis", c.AggregateSink)
	}

	if _, err := bucket.ParseGranularity(c.Bucket); err != nil {
		fail("bucket: %v", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		fail("timezone %q: %v", c.Timezone, err)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			fail("schedule %q: %v", c.Schedule, err)
		}
	}
	if c.SnapshotInterval <= 0 {
		fail("snapshot_interval must be positive")
	}
	if c.MaxQueryLimit < 1 {
		fail("max_query_limit must be at least 1")
	}

	return errors.Join(errs...)
}

// Bucketer builds the bucket definition described by Bucket and Timezone.
func (c *Config) Bucketer() (bucket.Bucketer, error) {
	g, err := bucket.ParseGranularity(c.Bucket)
	if err != nil {
		return bucket.Bucketer{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return bucket.Bucketer{}, fmt.Errorf("%w: timezone: %w", ErrInvalidConfig, err)
	}
	return bucket.New(g, loc)
}
