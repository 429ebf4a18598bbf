// Package repository defines usage store contracts and the reader snapshot.
package repository

import (
	"context"

	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
)

// EventSource provides read access to raw usage events.
type EventSource interface {
	// Events returns every recorded event. An absent or empty store yields an
	// empty slice. Undecodable records yield an error wrapping ErrCorrupt.
	Events(ctx context.Context) ([]model.UsageEvent, error)
}

// EventAppender records new usage events.
type EventAppender interface {
	Append(ctx context.Context, events ...model.UsageEvent) error
}

// AggregateStore holds the derived aggregate view.
type AggregateStore interface {
	// Replace swaps the whole aggregate set. Readers observe either the
	// previous set or the new one, never a mixture; on error the previous
	// set stays in place.
	Replace(ctx context.Context, set model.AggregateSet) error

	// Load returns the current aggregate set.
	// Returns ErrNoAggregate if no set was ever written.
	Load(ctx context.Context) (model.AggregateSet, error)
}

// Store is a usage store that serves both events and aggregates.
type Store interface {
	EventSource
	EventAppender
	AggregateStore
	Close() error
}
