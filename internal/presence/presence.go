// Package presence reports who is currently viewing a document. Clients send
// a heartbeat every Interval; a viewer disappears TTL after its last one.
// Presence never writes documents or checkpoints.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/internal/document/repository"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/metrics"
)

// Viewer is one caller seen on a document.
type Viewer struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// Tracker stores heartbeats.
type Tracker interface {
	Heartbeat(ctx context.Context, id document.ID, user string, at time.Time) error
	// Viewers returns users whose last heartbeat is after since.
	Viewers(ctx context.Context, id document.ID, since time.Time) ([]Viewer, error)
	Leave(ctx context.Context, id document.ID, user string) error
	Clear(ctx context.Context, id document.ID) error
}

// DocumentReader returns repository.ErrNotFound for unknown ids.
type DocumentReader interface {
	Get(ctx context.Context, id document.ID) (*document.Document, error)
}

// Status is returned to heartbeating clients.
type Status struct {
	Viewers  []Viewer `json:"viewers"`
	Interval int64    `json:"intervalMs"`
}

type Service struct {
	docs     DocumentReader
	tracker  Tracker
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
}

func NewService(docs DocumentReader, tracker Tracker, interval, ttl time.Duration) *Service {
	return &Service{docs: docs, tracker: tracker, interval: interval, ttl: ttl, now: time.Now}
}

// Subscribe forgets the viewers of deleted documents.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.OnDocumentDeleted(func(ctx context.Context, e events.DocumentDeleted) {
		if err := s.tracker.Clear(ctx, e.DocumentID); err != nil {
			logger.Warnw("presence clear failed", "documentId", e.DocumentID, "error", err)
		}
	})
}

func (s *Service) authorize(ctx context.Context, caller access.Caller, id document.ID) error {
	if err := access.RequireCaller(caller); err != nil {
		return err
	}
	d, err := s.docs.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		d, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("load document %s: %w", id, err)
	}
	_, err = access.Authorize(access.OpPresence, caller, d)
	return err
}

func (s *Service) viewers(ctx context.Context, id document.ID) ([]Viewer, error) {
	vs, err := s.tracker.Viewers(ctx, id, s.now().Add(-s.ttl))
	if err != nil {
		return nil, fmt.Errorf("list viewers of %s: %w", id, err)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].UserID < vs[j].UserID })
	return vs, nil
}

// Heartbeat marks caller as viewing id and returns everyone currently there.
func (s *Service) Heartbeat(ctx context.Context, caller access.Caller, id document.ID) (*Status, error) {
	if err := s.authorize(ctx, caller, id); err != nil {
		return nil, err
	}
	if err := s.tracker.Heartbeat(ctx, id, caller.String(), s.now()); err != nil {
		return nil, fmt.Errorf("record heartbeat on %s: %w", id, err)
	}
	metrics.PresenceHeartbeats.Inc()
	vs, err := s.viewers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{Viewers: vs, Interval: s.interval.Milliseconds()}, nil
}

func (s *Service) Viewers(ctx context.Context, caller access.Caller, id document.ID) ([]Viewer, error) {
	if err := s.authorize(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.viewers(ctx, id)
}

// Leave removes caller right away instead of waiting for the TTL. It needs
// no access to the document, so callers can leave documents that became
// private or were deleted.
func (s *Service) Leave(ctx context.Context, caller access.Caller, id document.ID) error {
	if err := access.RequireCaller(caller); err != nil {
		return err
	}
	return s.tracker.Leave(ctx, id, caller.String())
}
