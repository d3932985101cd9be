// Package memstore is an in-process store.Store guarded by an RWMutex. It
// backs the "memory" driver and doubles as the fake in service tests.
package memstore

import (
	"context"
	"sync"

	"inspections-api/pkg/store"
)

// Compile-time contract assertion.
var _ store.Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[int64]store.Row
	lastID int64
}

func New() *MemoryStore {
	return &MemoryStore{
		rows: make(map[int64]store.Row),
	}
}

func (m *MemoryStore) List(ctx context.Context) ([]store.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, clone(r))
	}
	store.SortByDateDesc(out)
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (store.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok {
		return store.Row{}, store.ErrNotFound
	}
	return clone(r), nil
}

// Insert assigns the next id. Ids are never reused, even after Delete or Reset.
func (m *MemoryStore) Insert(ctx context.Context, row store.Row) (store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	row.ID = m.lastID
	m.rows[row.ID] = clone(row)
	return clone(row), nil
}

func (m *MemoryStore) Update(ctx context.Context, id int64, changes store.Changes) (store.Row, error) {
	if err := changes.Validate(); err != nil {
		return store.Row{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return store.Row{}, store.ErrNotFound
	}
	r = changes.Apply(r)
	m.rows[id] = r
	return clone(r), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, query string) ([]store.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []store.Row{}
	for _, r := range m.rows {
		if r.Matches(query) {
			out = append(out, clone(r))
		}
	}
	store.SortByDateDesc(out)
	return out, nil
}

func (m *MemoryStore) CountBy(ctx context.Context, column string) (map[string]int, error) {
	if err := store.ValidateGroupColumn(column); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range m.rows {
		counts[r.Field(column)]++
	}
	return counts, nil
}

func (m *MemoryStore) Count(ctx context.Context, filter store.Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rows {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[int64]store.Row)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// clone copies the coordinate pointers so callers cannot mutate stored rows.
func clone(r store.Row) store.Row {
	if r.Lat != nil {
		lat := *r.Lat
		r.Lat = &lat
	}
	if r.Lng != nil {
		lng := *r.Lng
		r.Lng = &lng
	}
	return r
}
