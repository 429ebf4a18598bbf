// Package filestore implements the usage store on plain files: a JSON-lines
// event log and a JSON aggregate document that is swapped by rename.
package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/model"
	"github.com/prajain321/tct-feature-tracker/pkg/metrics"
)

const maxLineSize = 1 << 20

// Store is a repository.Store backed by two files.
type Store struct {
	eventsPath     string
	aggregatesPath string

	appendMu sync.Mutex
}

// New returns a store over the given events and aggregates files. Neither
// file needs to exist yet.
func New(eventsPath, aggregatesPath string) *Store {
	return &Store{eventsPath: eventsPath, aggregatesPath: aggregatesPath}
}

// Events reads the event log. A missing log is an empty store.
func (s *Store) Events(ctx context.Context) ([]model.UsageEvent, error) {
	defer observe("events", time.Now())

	f, err := os.Open(s.eventsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.UsageEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer f.Close()

	events := make([]model.UsageEvent, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ev model.UsageEvent
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", repository.ErrCorrupt, s.eventsPath, line, err)
		}
		if dec.More() {
			return nil, fmt.Errorf("%w: %s line %d: trailing data", repository.ErrCorrupt, s.eventsPath, line)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: %s line %d: %v", repository.ErrCorrupt, s.eventsPath, line+1, err)
		}
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// Append writes events to the end of the log and syncs it.
func (s *Store) Append(ctx context.Context, events ...model.UsageEvent) error {
	defer observe("append", time.Now())

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event %d: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.eventsPath), 0o755); err != nil {
		return fmt.Errorf("create events directory: %w", err)
	}
	f, err := os.OpenFile(s.eventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write events: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync events: %w", err)
	}
	return f.Close()
}

// Replace writes set to a temporary file beside the aggregates file, syncs
// it and renames it into place. Readers see the old file or the new one.
func (s *Store) Replace(ctx context.Context, set model.AggregateSet) (err error) {
	defer observe("replace", time.Now())

	if set.Aggregates == nil {
		set.Aggregates = []model.UsageAggregate{}
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode aggregates: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.aggregatesPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create aggregates directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.aggregatesPath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write aggregates: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync aggregates: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close aggregates: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod aggregates: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.aggregatesPath); err != nil {
		return fmt.Errorf("swap aggregates: %w", err)
	}

	// persist the rename; not every platform can sync a directory
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load reads the aggregates file.
func (s *Store) Load(_ context.Context) (model.AggregateSet, error) {
	defer observe("load", time.Now())

	data, err := os.ReadFile(s.aggregatesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return model.AggregateSet{}, repository.ErrNoAggregate
	}
	if err != nil {
		return model.AggregateSet{}, fmt.Errorf("read aggregates: %w", err)
	}

	var set model.AggregateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return model.AggregateSet{}, fmt.Errorf("%w: %s: %v", repository.ErrCorrupt, s.aggregatesPath, err)
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

// Watch calls onChange whenever the aggregates file is written or swapped,
// until ctx is done. The parent directory is watched because Replace
// substitutes the file rather than rewriting it.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(s.aggregatesPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create aggregates directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.aggregatesPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch aggregates: %w", err)
		}
	}
}

// Close is a no-op; files are opened per call.
func (s *Store) Close() error { return nil }

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency("file", op, float64(time.Since(start).Microseconds())/1000)
}

var _ repository.Store = (*Store)(nil)
