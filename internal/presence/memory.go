package presence

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
)

// MemoryTracker keeps heartbeats in process; single-replica deployments only.
type MemoryTracker struct {
	mu   sync.Mutex
	seen map[document.ID]map[string]time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: make(map[document.ID]map[string]time.Time)}
}

func (m *MemoryTracker) Heartbeat(_ context.Context, id document.ID, user string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.seen[id]
	if !ok {
		users = make(map[string]time.Time)
		m.seen[id] = users
	}
	if at.After(users[user]) {
		users[user] = at
	}
	return nil
}

// Viewers also drops entries that are no longer visible.
func (m *MemoryTracker) Viewers(_ context.Context, id document.ID, since time.Time) ([]Viewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Viewer{}
	for user, last := range m.seen[id] {
		if !last.After(since) {
			delete(m.seen[id], user)
			continue
		}
		out = append(out, Viewer{UserID: user, LastSeen: last})
	}
	if len(m.seen[id]) == 0 {
		delete(m.seen, id)
	}
	return out, nil
}

func (m *MemoryTracker) Leave(_ context.Context, id document.ID, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen[id], user)
	return nil
}

func (m *MemoryTracker) Clear(_ context.Context, id document.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}
