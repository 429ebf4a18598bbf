// Package seed generates synthetic usage events for local runs and demos.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/pkg/logger"
)

// Defaults used by the seed command.
const (
	DefaultEvents    = 1000
	DefaultFeatures  = 8
	DefaultDays      = 14
	DefaultBatchSize = 500
)

// ErrInvalidConfig is returned when a Config cannot produce events.
var ErrInvalidConfig = errors.New("invalid seed config")

var plans = []string{"free", "team", "pro", "enterprise"}

var clients = []string{"web", "ios", "android", "cli"}

// Config describes the events to generate.
type Config struct {
	Events    int       // total events
	Features  int       // distinct feature ids
	Days      int       // spread events over this many days ending at End
	End       time.Time // latest possible timestamp; zero means now
	Seed      uint64    // random seed; zero picks one from the clock
	BatchSize int       // events per Append call
}

// Stats summarises a seed run.
type Stats struct {
	Events   int
	Batches  int
	Features map[string]int
	Duration time.Duration
}

func (c Config) validate() error {
	var errs []error
	if c.Events < 0 {
		errs = append(errs, fmt.Errorf("%w: events must be >= 0", ErrInvalidConfig))
	}
	if c.Features <= 0 {
		errs = append(errs, fmt.Errorf("%w: features must be > 0", ErrInvalidConfig))
	}
	if c.Days <= 0 {
		errs = append(errs, fmt.Errorf("%w: days must be > 0", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// FeatureID returns the id of the i-th synthetic feature.
func FeatureID(i int) string {
	return "feature-" + strconv.Itoa(i+1)
}

// Generate builds cfg.Events events. The same non-zero Seed and End always
// produce the same feature ids, timestamps and metadata.
func Generate(cfg Config) ([]model.UsageEvent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	end := cfg.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	span := int64(cfg.Days) * int64(24*time.Hour)

	events := make([]model.UsageEvent, 0, cfg.Events)
	for range cfg.Events {
		// Lower-numbered features are used more often.
		f := min(int(rng.ExpFloat64()*float64(cfg.Features)/3), cfg.Features-1)
		ts := end.Add(-time.Duration(rng.Int64N(span))).Truncate(time.Second)

		events = append(events, model.UsageEvent{
			ID:        uuid.NewString(),
			FeatureID: FeatureID(f),
			Timestamp: ts,
			Metadata: model.Metadata{
				"plan":       model.StringValue(plans[rng.IntN(len(plans))]),
				"client":     model.StringValue(clients[rng.IntN(len(clients))]),
				"latency_ms": model.IntValue(int64(5 + rng.IntN(500))),
				"success":    model.BoolValue(rng.Float64() > 0.05),
			},
		})
	}
	return events, nil
}

// Run generates events and appends them to dst in batches.
func Run(ctx context.Context, dst repository.EventAppender, cfg Config, log logger.Logger) (Stats, error) {
	start := time.Now()
	events, err := Generate(cfg)
	if err != nil {
		return Stats{}, err
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	stats := Stats{Features: make(map[string]int)}
	for i := 0; i < len(events); i += batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		chunk := events[i:min(i+batch, len(events))]
		if err := dst.Append(ctx, chunk...); err != nil {
			return stats, fmt.Errorf("append batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		stats.Events += len(chunk)
		for _, e := range chunk {
			stats.Features[e.FeatureID]++
		}
		log.Debug(ctx, "batch appended",
			logger.Int("batch", stats.Batches),
			logger.Int("events", stats.Events))
	}
	stats.Duration = time.Since(start)

	log.Info(ctx, "seeding complete",
		logger.Int("events", stats.Events),
		logger.Int("batches", stats.Batches),
		logger.Int("features", len(stats.Features)),
		logger.Duration("took", stats.Duration))
	return stats, nil
}
