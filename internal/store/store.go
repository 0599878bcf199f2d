// Package store keeps the app's event list in a single JSON file. It
// supplies the snapshot imports are deduplicated against and receives the
// events an import produced.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"dmailcal/internal/config"
	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
)

type fileFormat struct {
	Events []model.EventRecord `json:"events"`
}

// Store is a mutex-guarded in-memory list persisted on every change.
type Store struct {
	path string

	mu     sync.RWMutex
	events []model.EventRecord
}

// Open loads path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", path, err)
	}
	s.events = f.Events
	appLog.Debug("store opened", "path", path, "events", len(s.events))
	return s, nil
}

// Snapshot returns a copy of the current events.
func (s *Store) Snapshot() []model.EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EventRecord, len(s.events))
	copy(out, s.events)
	return out
}

// Len reports the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Merge appends events and persists the result. Callers pass the output
// of an import, which is already free of duplicates against the snapshot
// it was computed from; events whose identity now exists are skipped.
func (s *Store) Merge(events []model.EventRecord) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.EventRecord, len(s.events), len(s.events)+len(events))
	copy(next, s.events)
	added := 0
	for i := range events {
		dup := false
		for j := range next {
			if model.SameIdentity(&events[i], &next[j]) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		next = append(next, events[i])
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(next); err != nil {
		return 0, err
	}
	s.events = next
	appLog.Info("store merged", "added", added, "total", len(next))
	return added, nil
}

func (s *Store) save(events []model.EventRecord) error {
	data, err := json.MarshalIndent(fileFormat{Events: events}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := config.WriteFileAtomic(s.path, data, ".dmailcal-store-*.tmp"); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
