package repository

import (
	"context"
	"sync"

	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
)

// MemoryStore is a Store held entirely in memory. It backs tests and the
// "memory" store driver; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	events     []model.UsageEvent
	set        *model.AggregateSet
	eventsErr  error
	replaceErr error
}

// NewMemoryStore returns a store seeded with events.
func NewMemoryStore(events ...model.UsageEvent) *MemoryStore {
	return &MemoryStore{events: append([]model.UsageEvent(nil), events...)}
}

// FailEvents makes subsequent Events calls return err. Pass nil to clear.
func (m *MemoryStore) FailEvents(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsErr = err
}

// FailReplace makes subsequent Replace calls return err. Pass nil to clear.
func (m *MemoryStore) FailReplace(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceErr = err
}

func (m *MemoryStore) Events(ctx context.Context) ([]model.UsageEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.eventsErr != nil {
		return nil, m.eventsErr
	}
	return append(make([]model.UsageEvent, 0, len(m.events)), m.events...), nil
}

func (m *MemoryStore) Append(ctx context.Context, events ...model.UsageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MemoryStore) Replace(ctx context.Context, set model.AggregateSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	set.Aggregates = append(make([]model.UsageAggregate, 0, len(set.Aggregates)), set.Aggregates...)
	m.set = &set
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (model.AggregateSet, error) {
	if err := ctx.Err(); err != nil {
		return model.AggregateSet{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.set == nil {
		return model.AggregateSet{}, ErrNoAggregate
	}
	set := *m.set
	set.Aggregates = append(make([]model.UsageAggregate, 0, len(set.Aggregates)), set.Aggregates...)
	return set, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
