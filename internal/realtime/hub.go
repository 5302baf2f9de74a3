// Package realtime pushes commit notifications to websocket clients so they
// know when to pull new steps. It carries no document content.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/metrics"
)

var ErrTooManyConnections = errors.New("too many connections for caller")

// DocumentReader loads the current document so read access can be checked
// again on every push.
type DocumentReader interface {
	Get(ctx context.Context, id document.ID) (*document.Document, error)
}

type Hub struct {
	docsRepo DocumentReader

	mu      sync.RWMutex
	docs    map[document.ID]map[*Client]struct{}
	perUser map[access.Caller]int

	maxPerUser int
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	now        func() time.Time
}

// NewHub limits each caller to maxPerUser sockets; zero means no limit.
func NewHub(docs DocumentReader, maxPerUser int) *Hub {
	return &Hub{
		docsRepo:   docs,
		docs:       make(map[document.ID]map[*Client]struct{}),
		perUser:    make(map[access.Caller]int),
		maxPerUser: maxPerUser,
		writeWait:  10 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
		now:        time.Now,
	}
}

// Subscribe forwards commits and deletions to connected clients.
func (h *Hub) Subscribe(bus *events.Bus) {
	bus.OnContentCommitted(func(ctx context.Context, e events.ContentCommitted) {
		h.broadcast(ctx, e.DocumentID, TypeCommitted, CommittedPayload{
			DocumentID: e.DocumentID,
			Version:    e.Version,
			Kind:       string(e.Kind),
			Author:     e.Caller.String(),
		})
	})
	bus.OnDocumentDeleted(func(_ context.Context, e events.DocumentDeleted) {
		h.closeDocument(e.DocumentID)
	})
}

// Connections returns the number of sockets watching id.
func (h *Hub) Connections(id document.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.docs[id])
}

func (h *Hub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxPerUser > 0 && h.perUser[c.Caller] >= h.maxPerUser {
		return ErrTooManyConnections
	}
	clients, ok := h.docs[c.Doc]
	if !ok {
		clients = make(map[*Client]struct{})
		h.docs[c.Doc] = clients
	}
	clients[c] = struct{}{}
	h.perUser[c.Caller]++
	metrics.RealtimeConnections.Inc()
	logger.Debugf("client %s (%s) watching %s", c.ID, c.Caller, c.Doc)
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked is a no-op for clients already removed.
func (h *Hub) removeLocked(c *Client) {
	clients := h.docs[c.Doc]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.docs, c.Doc)
	}
	if h.perUser[c.Caller]--; h.perUser[c.Caller] <= 0 {
		delete(h.perUser, c.Caller)
	}
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

// sendTo queues one message for c if it is still registered.
func (h *Hub) sendTo(c *Client, t MessageType, payload interface{}) {
	msg, err := encode(t, payload, h.now())
	if err != nil {
		logger.Errorw("encode realtime message failed", "type", t, "error", err)
		return
	}
	h.mu.RLock()
	_, ok := h.docs[c.Doc][c]
	full := false
	if ok {
		select {
		case c.send <- msg:
		default:
			full = true
		}
	}
	h.mu.RUnlock()
	if full {
		logger.Warnw("realtime send buffer full, dropping client", "client", c.ID)
		h.unregister(c)
	}
}

// broadcast sends to every watcher of id that may still read it. Watchers
// that lost read access are disconnected instead.
func (h *Hub) broadcast(ctx context.Context, id document.ID, t MessageType, payload interface{}) {
	msg, err := encode(t, payload, h.now())
	if err != nil {
		logger.Errorw("encode realtime message failed", "type", t, "error", err)
		return
	}
	doc, err := h.docsRepo.Get(ctx, id)
	if err != nil {
		logger.Warnw("realtime broadcast skipped", "documentId", id, "error", err)
		return
	}
	var slow, revoked []*Client
	h.mu.RLock()
	for c := range h.docs[id] {
		if !access.CanRead(c.Caller, doc) {
			revoked = append(revoked, c)
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		logger.Warnw("realtime send buffer full, dropping client", "client", c.ID)
		h.unregister(c)
	}
	for _, c := range revoked {
		logger.Infow("read access revoked, dropping client", "client", c.ID, "documentId", id)
		h.unregister(c)
	}
}

// closeDocument tells every watcher that id is gone and disconnects them.
func (h *Hub) closeDocument(id document.ID) {
	msg, err := encode(TypeDeleted, DeletedPayload{DocumentID: id}, h.now())
	if err != nil {
		logger.Errorw("encode realtime message failed", "type", TypeDeleted, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.docs[id] {
		select {
		case c.send <- msg:
		default:
		}
		h.removeLocked(c)
	}
}
