package repository

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
)

// MemoryRepo is an in-memory repository used for local runs and unit tests.
// Records are copied in and out so callers never share state with the store.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[document.ID]document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[document.ID]document.Document)}
}

func (m *MemoryRepo) Create(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = document.NewID()
	}
	m.store[d.ID] = *d
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id document.ID) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return &d, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context, f Filter) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if f.match(&d) {
			d := d
			out = append(out, &d)
		}
	}
	SortByLastModified(out)
	return out, nil
}

func (m *MemoryRepo) Search(_ context.Context, f Filter, terms []string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if f.match(&d) && document.MatchesTitle(d.Title, terms) {
			d := d
			out = append(out, &d)
		}
	}
	SortByLastModified(out)
	return out, nil
}

func (m *MemoryRepo) Update(_ context.Context, id document.ID, p document.Patch) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.IsPublic != nil {
		d.IsPublic = *p.IsPublic
	}
	if p.LastModified.After(d.LastModified) {
		d.LastModified = p.LastModified
	}
	m.store[id] = d
	return &d, nil
}

func (m *MemoryRepo) Touch(_ context.Context, id document.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(d.LastModified) {
		d.LastModified = at
		m.store[id] = d
	}
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id document.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
