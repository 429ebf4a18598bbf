// Package redisstore publishes aggregate sets to a single Redis key.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/pkg/metrics"
)

// DefaultKey is the key aggregate sets are published under.
const DefaultKey = "tct:usage:aggregates"

// Store is a repository.AggregateStore backed by Redis.
type Store struct {
	client *redis.Client
	key    string
}

// Open connects to the Redis server at url (redis://[:password@]host:port/db).
func Open(ctx context.Context, url, key string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, key), nil
}

// New wraps an existing client. An empty key selects DefaultKey.
func New(client *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Replace writes the encoded set under a staging key and renames it over the
// live key inside one MULTI/EXEC block.
func (s *Store) Replace(ctx context.Context, set model.AggregateSet) error {
	defer observe("replace", time.Now())

	if set.Aggregates == nil {
		set.Aggregates = []model.UsageAggregate{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode aggregates: %w", err)
	}

	staging := s.key + ":staging:" + set.RunID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, staging, data, 0)
		pipe.Rename(ctx, staging, s.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish aggregates: %w", err)
	}
	return nil
}

// Load fetches and decodes the live key.
func (s *Store) Load(ctx context.Context) (model.AggregateSet, error) {
	defer observe("load", time.Now())

	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.AggregateSet{}, repository.ErrNoAggregate
	}
	if err != nil {
		return model.AggregateSet{}, fmt.Errorf("get aggregates: %w", err)
	}

	var set model.AggregateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return model.AggregateSet{}, fmt.Errorf("%w: redis key %s: %v", repository.ErrCorrupt, s.key, err)
	}
	if set.Aggregates == nil {
		set.Aggregates = []model.UsageAggregate{}
	}
	set.GeneratedAt = set.GeneratedAt.UTC()
	for i := range set.Aggregates {
		set.Aggregates[i].BucketStart = set.Aggregates[i].BucketStart.UTC()
	}
	return set, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency("redis", op, float64(time.Since(start).Microseconds())/1000)
}

var _ repository.AggregateStore = (*Store)(nil)
