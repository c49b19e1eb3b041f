// Package store owns the in-memory event mapping and keeps it in sync with
// the events.json durable file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"notifsync/internal/codec"
	appLog "notifsync/internal/log"
	"notifsync/internal/model"
)

// ErrNotFound is returned when an operation references an unknown id.
var ErrNotFound = errors.New("event not found")

// SeedFunc produces the initial dataset used when the durable file is
// missing.
type SeedFunc func() []model.Event

// Store is the authoritative id -> event mapping. A single mutex guards the
// mapping and the last recorded modification time of the file; every
// mutation writes the whole mapping back before returning.
type Store struct {
	path string
	seed SeedFunc

	mu      sync.Mutex
	events  map[int]model.Event
	modTime time.Time
	report  *codec.DecodeReport
}

// New returns an empty store bound to path. Call Load before use.
// A nil seed means "start empty" when the file does not exist.
func New(path string, seed SeedFunc) *Store {
	if seed == nil {
		seed = func() []model.Event { return nil }
	}
	return &Store{
		path:   path,
		seed:   seed,
		events: make(map[int]model.Event),
	}
}

// Open is New followed by Load.
func Open(path string, seed SeedFunc) (*Store, error) {
	s := New(path, seed)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the durable file location.
func (s *Store) Path() string {
	return s.path
}

// ModTime returns the file modification time recorded by the last load or
// save.
func (s *Store) ModTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modTime
}

// LastReport returns the decode report of the most recent load from disk,
// or nil if the store was seeded.
func (s *Store) LastReport() *codec.DecodeReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Load replaces the whole mapping with the contents of the durable file. If
// the file does not exist the store is seeded and the file written
// immediately.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.seedLocked()
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	events, report, err := codec.Decode(f)
	if err != nil {
		// Keep the previous mapping rather than half of the file.
		return fmt.Errorf("load %s: %w", s.path, err)
	}

	next := make(map[int]model.Event, len(events))
	for _, ev := range events {
		next[ev.ID] = ev
	}
	s.events = next
	s.report = report

	appLog.Info("events loaded",
		"path", s.path,
		"count", len(next),
		"skipped", len(report.Skipped),
	)
	return s.recordModTimeLocked()
}

func (s *Store) seedLocked() error {
	next := make(map[int]model.Event)
	nextID := 1
	for _, ev := range s.seed() {
		codec.Normalize(&ev)
		if ev.ID == 0 {
			ev.ID = nextID
		}
		if ev.ID >= nextID {
			nextID = ev.ID + 1
		}
		next[ev.ID] = ev
	}
	s.events = next
	s.report = nil

	appLog.Info("events file missing; seeded store", "path", s.path, "count", len(next))
	return s.saveLocked()
}

// Save writes the whole mapping to the durable file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes atomically via a temp file in the same directory and a
// rename, then records the new modification time so the watcher does not
// reload our own write.
func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".events-*.tmp")
	if err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := codec.Encode(tmp, s.sortedLocked()); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}

	appLog.Debug("events saved", "path", s.path, "count", len(s.events))
	return s.recordModTimeLocked()
}

func (s *Store) recordModTimeLocked() error {
	fi, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	s.modTime = fi.ModTime()
	return nil
}

// ReloadIfChanged reloads the store when the file's modification time
// differs from the one last recorded. A missing file is left alone. It
// reports whether a reload happened.
func (s *Store) ReloadIfChanged() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if fi.ModTime().Equal(s.modTime) {
		return false, nil
	}

	appLog.Info("detected change in events file, reloading", "path", s.path)
	if err := s.loadLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// List returns every record, soft-deleted ones included, by ascending id.
func (s *Store) List() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []model.Event {
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the record stored under id.
func (s *Store) Get(id int) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return ev, nil
}

// Add inserts ev, assigning max(id)+1 when its id is unset. An existing
// record with the same id is overwritten.
func (s *Store) Add(ev model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == 0 {
		ev.ID = s.maxIDLocked() + 1
	}
	s.events[ev.ID] = ev
	if err := s.saveLocked(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// Update replaces every field of the record stored under id. The payload's
// own id is ignored.
func (s *Store) Update(id int, ev model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return model.Event{}, ErrNotFound
	}
	ev.ID = id
	s.events[id] = ev
	if err := s.saveLocked(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// Delete soft-deletes the record stored under id.
func (s *Store) Delete(id int) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	ev.Deleted = true
	s.events[id] = ev
	if err := s.saveLocked(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// ClearTrash purges every soft-deleted record and returns how many were
// removed.
func (s *Store) ClearTrash() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ev := range s.events {
		if ev.Deleted {
			delete(s.events, id)
			removed++
		}
	}
	if err := s.saveLocked(); err != nil {
		return removed, err
	}
	appLog.Info("trash cleared", "removed", removed)
	return removed, nil
}

// Merge upserts records keyed by notification id. A matching record keeps
// its id, reminded, deleted and created_at values and takes everything else
// from the incoming record; unmatched records get fresh ids. The file is
// written once, and only if something changed.
func (s *Store) Merge(incoming []model.Event) (added, updated int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byNotification := make(map[string]int, len(s.events))
	for id, ev := range s.events {
		if ev.NotificationID != "" {
			byNotification[ev.NotificationID] = id
		}
	}

	nextID := s.maxIDLocked() + 1
	for _, ev := range incoming {
		if id, ok := byNotification[ev.NotificationID]; ok && ev.NotificationID != "" {
			cur := s.events[id]
			ev.ID = cur.ID
			ev.Reminded = cur.Reminded
			ev.Deleted = cur.Deleted
			ev.CreatedAt = cur.CreatedAt
			if ev.Equal(cur) {
				continue
			}
			s.events[id] = ev
			updated++
			continue
		}
		ev.ID = nextID
		nextID++
		s.events[ev.ID] = ev
		if ev.NotificationID != "" {
			byNotification[ev.NotificationID] = ev.ID
		}
		added++
	}

	if added+updated == 0 {
		return 0, 0, nil
	}
	if err := s.saveLocked(); err != nil {
		return added, updated, err
	}
	return added, updated, nil
}

func (s *Store) maxIDLocked() int {
	maxID := 0
	for id := range s.events {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}
