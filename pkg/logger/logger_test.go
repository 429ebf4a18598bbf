package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			err := Init()
			So(err, ShouldBeNil)
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat("xml"))
			So(err, ShouldNotBeNil)
		})

		Convey("When initialized with an unknown level", func() {
			err := Init(WithLevel("loud"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf), WithFormat("json"), WithLevel("debug")), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with typed fields", func() {
			Get().Info(ctx, "refresh finished",
				String("run_id", "r1"),
				Int("features", 2),
				Int64("events", 3),
				Bool("empty", false),
				Duration("took", time.Second),
				Error(errors.New("boom")),
			)

			Convey("Then the record should carry every field", func() {
				var rec map[string]interface{}
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "refresh finished")
				So(rec["run_id"], ShouldEqual, "r1")
				So(rec["features"], ShouldEqual, 2.0)
				So(rec["events"], ShouldEqual, 3.0)
				So(rec["empty"], ShouldEqual, false)
				So(rec["error"], ShouldEqual, "boom")
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown")

			Convey("Then only records at or above it are written", func() {
				out := buf.String()
				So(out, ShouldNotContainSubstring, "hidden")
				So(out, ShouldContainSubstring, "shown")
			})
		})

		Convey("When using a named logger", func() {
			Named("refresh").Info(ctx, "grouped", String("k", "v"))

			Convey("Then fields are nested under the name", func() {
				So(strings.Contains(buf.String(), `"refresh":{`), ShouldBeTrue)
			})
		})
	})
}

func TestDiscard(t *testing.T) {
	Convey("Discard should accept records without output", t, func() {
		So(func() { Discard().Named("x").Error(context.Background(), "dropped") }, ShouldNotPanic)
	})
}
