package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gogotex/collabdocs/internal/checkpoint"
	"github.com/gogotex/collabdocs/internal/document"
)

// MemoryStore keeps checkpoints in process. One mutex serializes writers,
// which makes the version check and the write a single step.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[document.ID]*checkpoint.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[document.ID]*checkpoint.State)}
}

func (m *MemoryStore) Load(_ context.Context, id document.ID) (*checkpoint.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[id]; ok {
		return s.Clone(), nil
	}
	return &checkpoint.State{DocumentID: id}, nil
}

// update runs fn on a copy of the state and stores it only when fn succeeds.
func (m *MemoryStore) update(id document.ID, fn func(*checkpoint.State) error) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[id]
	if !ok {
		cur = &checkpoint.State{DocumentID: id}
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return 0, err
	}
	m.states[id] = next
	return next.Version(), nil
}

func (m *MemoryStore) AppendSteps(_ context.Context, id document.ID, b checkpoint.StepBatch) (int64, error) {
	b.Steps = append([]json.RawMessage(nil), b.Steps...)
	return m.update(id, func(s *checkpoint.State) error { return s.Append(b) })
}

func (m *MemoryStore) Compact(_ context.Context, id document.ID, base int64, content json.RawMessage, at time.Time) (int64, error) {
	content = append(json.RawMessage(nil), content...)
	return m.update(id, func(s *checkpoint.State) error { return s.Compact(base, content, at) })
}

func (m *MemoryStore) Delete(_ context.Context, id document.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}
