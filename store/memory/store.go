// Package memory provides a fully in-memory schedule store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/momentumcms/recurring"
	"github.com/momentumcms/recurring/id"
	"github.com/momentumcms/recurring/schedule"
)

// Ensure Store implements the schedule contract at compile time.
var _ schedule.Store = (*Store)(nil)

// Store is an in-memory implementation of the schedule store. Records are
// copied in and out, so callers can mutate what they hold without racing
// with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*schedule.Record // key: ID string
	names   map[string]string           // name -> ID string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*schedule.Record),
		names:   make(map[string]string),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// Create persists a new record and assigns its ID.
func (m *Store) Create(_ context.Context, rec *schedule.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.names[rec.Name]; taken {
		return recurring.ErrDuplicateSchedule
	}

	rec.ID = id.NewScheduleID()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	cp := *rec
	m.records[rec.ID.String()] = &cp
	m.names[rec.Name] = rec.ID.String()
	return nil
}

// Get retrieves a record by ID.
func (m *Store) Get(_ context.Context, scheduleID id.ScheduleID) (*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[scheduleID.String()]
	if !ok {
		return nil, recurring.ErrScheduleNotFound
	}
	cp := *rec
	return &cp, nil
}

// FindByName retrieves the record with the given name.
func (m *Store) FindByName(_ context.Context, name string) (*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.names[name]
	if !ok {
		return nil, recurring.ErrScheduleNotFound
	}
	cp := *m.records[key]
	return &cp, nil
}

// FindDue returns up to limit enabled records with NextRunAt at or before
// now, ordered by NextRunAt ascending.
func (m *Store) FindDue(_ context.Context, now time.Time, limit int) ([]*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*schedule.Record, 0, len(m.records))
	for _, rec := range m.records {
		if !rec.Enabled {
			continue
		}
		if rec.NextRunAt.After(now) {
			continue
		}
		cp := *rec
		due = append(due, &cp)
	}

	sort.Slice(due, func(i, k int) bool {
		return due[i].NextRunAt.Before(due[k].NextRunAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// List returns up to limit records, ordered by creation time.
func (m *Store) List(_ context.Context, limit int) ([]*schedule.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*schedule.Record, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update replaces the stored record, keeping ID and CreatedAt.
func (m *Store) Update(_ context.Context, rec *schedule.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.ID.String()
	existing, ok := m.records[key]
	if !ok {
		return recurring.ErrScheduleNotFound
	}

	if existing.Name != rec.Name {
		if _, taken := m.names[rec.Name]; taken {
			return recurring.ErrDuplicateSchedule
		}
		delete(m.names, existing.Name)
		m.names[rec.Name] = key
	}

	cp := *rec
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	m.records[key] = &cp
	return nil
}

// Advance records a claimed tick in one write.
func (m *Store) Advance(_ context.Context, scheduleID id.ScheduleID, lastRunAt, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[scheduleID.String()]
	if !ok {
		return recurring.ErrScheduleNotFound
	}

	last := lastRunAt
	rec.LastRunAt = &last
	rec.NextRunAt = nextRunAt
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a record by ID.
func (m *Store) Delete(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	rec, ok := m.records[key]
	if !ok {
		return recurring.ErrScheduleNotFound
	}
	delete(m.names, rec.Name)
	delete(m.records, key)
	return nil
}
