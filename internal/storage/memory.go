package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/shelf/internal/models"
)

// MemoryCatalog keeps records in process memory. Records are copied on the way
// in and out so callers cannot mutate stored state.
type MemoryCatalog struct {
	records map[string]*models.Record
	order   []string
	mu      sync.RWMutex
}

// NewMemoryCatalog returns an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]*models.Record)}
}

func (m *MemoryCatalog) Get(ctx context.Context, id string) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	return r.Clone(), nil
}

func (m *MemoryCatalog) GetMany(ctx context.Context, ids []string) (map[string]*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*models.Record, len(ids))
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out[id] = r.Clone()
		}
	}
	return out, nil
}

func (m *MemoryCatalog) Put(ctx context.Context, records []*models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.records[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		m.records[r.ID] = r.Clone()
	}
	return nil
}

func (m *MemoryCatalog) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	delete(m.records, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryCatalog) List(ctx context.Context) ([]*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id].Clone())
	}
	return out, nil
}

func (m *MemoryCatalog) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.order)), nil
}

// Close is a no-op for MemoryCatalog.
func (m *MemoryCatalog) Close() error {
	return nil
}
