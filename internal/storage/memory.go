package storage

import (
	"context"
	"sync"
)

// Memory is the in-memory Driver used for tests and dev. No durability.
// List order is insertion order.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
	coords  map[string]string // coordinate -> id
	order   []string          // ids in insertion order
	closed  bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*Record),
		coords:  make(map[string]string),
	}
}

func (m *Memory) Put(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[rec.ID]; ok {
		if old.Coordinate != rec.Coordinate {
			delete(m.coords, old.Coordinate)
		}
	} else {
		m.order = append(m.order, rec.ID)
	}
	m.records[rec.ID] = rec.Clone()
	if rec.Coordinate != "" {
		m.coords[rec.Coordinate] = rec.ID
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) List(ctx context.Context, cursor string, limit int) ([]Record, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if cursor != "" {
		found := false
		for i, id := range m.order {
			if id == cursor {
				start = i + 1
				found = true
				break
			}
		}
		// A cursor this store never issued ends the listing; restarting
		// from the top would hand the caller duplicates.
		if !found {
			return nil, "", nil
		}
	}

	var out []Record
	next := ""
	for i := start; i < len(m.order); i++ {
		rec, ok := m.records[m.order[i]]
		if !ok {
			continue // deleted, tombstone left in order slice
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, *rec.Clone())
	}
	return out, next, nil
}

func (m *Memory) GetByCoordinate(ctx context.Context, coordinate string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.coords[coordinate]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		delete(m.coords, rec.Coordinate)
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = make(map[string]*Record)
	m.coords = make(map[string]string)
	m.order = nil
	return nil
}
