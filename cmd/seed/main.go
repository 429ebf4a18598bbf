// Command seed appends synthetic usage events to the configured usage store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/storage"
	"github.com/prajain321/tct-feature-tracker/internal/config"
	"github.com/prajain321/tct-feature-tracker/internal/seed"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		configPath = fs.String("config", "", "YAML config file (overrides "+config.EnvConfig+")")
		events     = fs.Int("events", seed.DefaultEvents, "number of events to append")
		features   = fs.Int("features", seed.DefaultFeatures, "number of distinct features")
		days       = fs.Int("days", seed.DefaultDays, "spread events over this many days")
		batch      = fs.Int("batch", seed.DefaultBatchSize, "events per append")
		rngSeed    = fs.Uint64("seed", 0, "random seed (0 = time based)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return err
	}
	if err := logger.Init(
		logger.WithOutput(out),
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
	); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if cfg.StoreDriver == config.DriverMemory {
		return fmt.Errorf("%w: seeding the memory driver has no lasting effect", config.ErrInvalidConfig)
	}

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	_, err = seed.Run(ctx, stores.Appender, seed.Config{
		Events:    *events,
		Features:  *features,
		Days:      *days,
		Seed:      *rngSeed,
		BatchSize: *batch,
	}, logger.Get().Named("seed"))
	return err
}
