package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/config"
	"github.com/prajain321/tct-feature-tracker/internal/domain/bucket"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.AggregateSink, convey.ShouldEqual, config.SinkSame)
			convey.So(cfg.Bucket, convey.ShouldEqual, "day")
			convey.So(cfg.Schedule, convey.ShouldEqual, "*/30 * * * *")
			convey.So(cfg.SnapshotInterval, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then it should build a UTC day bucketer", func() {
			b, err := cfg.Bucketer()
			convey.So(err, convey.ShouldBeNil)
			convey.So(b.Granularity(), convey.ShouldEqual, bucket.Day)
			convey.So(b.Location(), convey.ShouldEqual, time.UTC)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		cases := []struct {
			name   string
			mutate func(*config.Config)
			want   string
		}{
			{"unknown log level", func(c *config.Config) { c.LogLevel = "loud" }, "log_level"},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
			{"empty addr", func(c *config.Config) { c.Addr = "" }, "addr must not be empty"},
			{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }, "store_driver"},
			{"sqlite without path", func(c *config.Config) { c.SQLitePath = "" }, "sqlite_path"},
			{"file driver without files", func(c *config.Config) {
				c.StoreDriver = config.DriverFile
				c.EventsFile = ""
			}, "events_file"},
			{"redis sink without url", func(c *config.Config) {
				c.AggregateSink = config.SinkRedis
				c.RedisURL = ""
			}, "redis_url"},
			{"unknown sink", func(c *config.Config) { c.AggregateSink = "s3" }, "aggregate_sink"},
			{"unknown bucket", func(c *config.Config) { c.Bucket = "fortnight" }, "bucket"},
			{"unknown timezone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
			{"bad schedule", func(c *config.Config) { c.Schedule = "every now and then" }, "schedule"},
			{"zero snapshot interval", func(c *config.Config) { c.SnapshotInterval = 0 }, "snapshot_interval"},
			{"zero query limit", func(c *config.Config) { c.MaxQueryLimit = 0 }, "max_query_limit"},
		}

		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
				})
			})
		}

		convey.Convey("When the schedule is empty", func() {
			cfg.Schedule = ""

			convey.Convey("Then the schedule is simply disabled", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When several fields are wrong", func() {
			cfg.Addr = ""
			cfg.Bucket = "decade"
			err := cfg.Validate()

			convey.Convey("Then every problem is reported", func() {
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr")
				convey.So(err.Error(), convey.ShouldContainSubstring, "decade")
			})
		})
	})
}
