// Command refresh recomputes the feature-usage aggregates once and exits.
// It is meant to be run by an external scheduler (cron, systemd timers,
// Kubernetes CronJobs).
//
// Exit status:
//
//	0   aggregates replaced
//	1   usage store corrupt; previous aggregates left in place
//	2   configuration error
//	75  transient store failure; safe to retry on the next trigger
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/adapters/storage"
	app "github.com/prajain321/tct-feature-tracker/internal/app"
	"github.com/prajain321/tct-feature-tracker/internal/config"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
)

// Exit codes.
const (
	exitOK       = 0
	exitCorrupt  = 1
	exitConfig   = 2
	exitTempFail = 75
)

const defaultTimeout = 10 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file (overrides "+config.EnvConfig+")")
	timeout := fs.Duration("timeout", defaultTimeout, "abort the run after this long")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	path := *configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		fmt.Fprintf(stderr, "refresh: %v\n", err)
		return exitConfig
	}

	if err := logger.Init(
		logger.WithOutput(stdout),
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
	); err != nil {
		fmt.Fprintf(stderr, "refresh: init logging: %v\n", err)
		return exitConfig
	}
	log := logger.Get()

	b, err := cfg.Bucketer()
	if err != nil {
		log.Error(ctx, "invalid bucket configuration", logger.Error(err))
		return exitConfig
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Error(ctx, "cannot open usage store", logger.Error(err))
		switch {
		case errors.Is(err, repository.ErrCorrupt):
			return exitCorrupt
		case errors.Is(err, config.ErrInvalidConfig):
			return exitConfig
		default:
			return exitTempFail
		}
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn(ctx, "closing stores failed", logger.Error(err))
		}
	}()

	agg := app.NewAggregator(stores.Events, stores.Sink, b)
	_, err = agg.Run(ctx)
	return exitCode(err)
}

func exitCode(err error) int {
	switch app.Outcome(err) {
	case "success":
		return exitOK
	case "corrupt":
		return exitCorrupt
	default:
		return exitTempFail
	}
}
