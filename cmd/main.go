package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/http/api"
	"github.com/prajain321/tct-feature-tracker/internal/adapters/http/swagger"
	"github.com/prajain321/tct-feature-tracker/internal/adapters/storage"
	app "github.com/prajain321/tct-feature-tracker/internal/app"
	"github.com/prajain321/tct-feature-tracker/internal/config"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
	"github.com/prajain321/tct-feature-tracker/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 60 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "YAML config file (overrides "+config.EnvConfig+")")
	flag.Parse()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		os.Stderr.WriteString("server failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	b, err := cfg.Bucketer()
	if err != nil {
		return err
	}

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn(ctx, "closing stores failed", logger.Error(err))
		}
	}()

	// Create and start the service with configuration options
	svc := app.New(stores.Events, stores.Sink, b,
		app.WithLogger(log),
		app.WithReloadInterval(cfg.SnapshotInterval),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	// In-process schedule; empty disables it
	if cfg.Schedule != "" {
		sched, err := newScheduler(ctx, cfg.Schedule, svc, log.Named("cron"))
		if err != nil {
			return err
		}
		sched.Start()
		log.Info(ctx, "refresh schedule enabled", logger.String("schedule", cfg.Schedule))
		defer func() { <-sched.Stop().Done() }()
	}

	// Reload readers as soon as another process swaps the aggregate file
	if stores.Watcher != nil {
		go func() {
			err := stores.Watcher.Watch(ctx, func() {
				if err := svc.Reload(ctx); err != nil {
					log.Warn(ctx, "reload after file change failed", logger.Error(err))
				}
			})
			if err != nil {
				log.Warn(ctx, "aggregate file watch stopped", logger.Error(err))
			}
		}()
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg.MaxQueryLimit, healthChecks(stores)...),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newMux registers the API and docs routes.
func newMux(ctx context.Context, svc *app.Service, maxLimit int, checks ...api.HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, maxLimit, checks...).Register(ctx, mux)
	return mux
}

// healthChecks probes every backend that can answer a ping.
func healthChecks(stores *storage.Stores) []api.HealthCheck {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	var checks []api.HealthCheck
	if p, ok := stores.Sink.(pinger); ok {
		checks = append(checks, api.HealthCheck{Name: "aggregate_sink", Check: p.Ping})
	}
	if p, ok := stores.Events.(pinger); ok {
		checks = append(checks, api.HealthCheck{Name: "usage_store", Check: p.Ping})
	}
	return checks
}

// newScheduler runs a refresh on spec. Overlapping triggers are skipped so
// two refreshes never run at once.
func newScheduler(ctx context.Context, spec string, svc *app.Service, log logger.Logger) (*cron.Cron, error) {
	clog := cronLogger{ctx: ctx, log: log}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(
		cron.Recover(clog),
		cron.SkipIfStillRunning(clog),
	))
	_, err := c.AddFunc(spec, func() {
		// outcome and errors are logged by the aggregator
		_, _ = svc.Refresh(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %w", config.ErrInvalidConfig, spec, err)
	}
	return c, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	ctx context.Context
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(c.ctx, msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(c.ctx, msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
