package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository/sqlitestore"
	"github.com/prajain321/tct-feature-tracker/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestSeedCommand(t *testing.T) {
	convey.Convey("Given a sqlite usage store", t, func() {
		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "usage.db")
		cfgPath := writeConfig(t, "store_driver: sqlite\nsqlite_path: "+dbPath+"\n")

		convey.Convey("When seeding 120 events", func() {
			var out bytes.Buffer
			err := run(ctx, []string{"-config", cfgPath, "-events", "120", "-features", "3", "-days", "2", "-batch", "50", "-seed", "9"}, &out)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the events are stored", func() {
				store, err := sqlitestore.Open(ctx, dbPath)
				convey.So(err, convey.ShouldBeNil)
				defer store.Close()

				events, err := store.Events(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(events, convey.ShouldHaveLength, 120)
				convey.So(out.String(), convey.ShouldContainSubstring, "seeding complete")
			})
		})
	})

	convey.Convey("Given the memory driver", t, func() {
		cfgPath := writeConfig(t, "store_driver: memory\n")

		convey.Convey("Then seeding is refused", func() {
			var out bytes.Buffer
			err := run(context.Background(), []string{"-config", cfgPath}, &out)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
