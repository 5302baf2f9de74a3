package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/internal/document/repository"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/metrics"
)

// Service implements the document query and mutation operations. Every
// operation is authorized through access.Authorize.
type Service struct {
	repo repository.Repository
	bus  *events.Bus
	now  func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service over repo. bus may be nil when nothing listens for
// deletions.
func New(repo repository.Repository, bus *events.Bus, opts ...Option) *Service {
	s := &Service{repo: repo, bus: bus, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe makes accepted content commits refresh lastModified.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.OnContentCommitted(func(ctx context.Context, e events.ContentCommitted) {
		if err := s.Touch(ctx, e.Caller, e.DocumentID); err != nil {
			logger.Warnw("touch after commit failed", "documentId", e.DocumentID, "caller", e.Caller, "error", err)
		}
	})
}

// lookup loads id, mapping a missing record to nil.
func (s *Service) lookup(ctx context.Context, id document.ID) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return d, nil
}

// load fetches id and applies the policy of op. proceed is false when the
// policy skips silently.
func (s *Service) load(ctx context.Context, op access.Operation, caller access.Caller, id document.ID) (*document.Document, bool, error) {
	if err := access.RequireCaller(caller); err != nil {
		return nil, false, err
	}
	d, err := s.lookup(ctx, id)
	if err != nil {
		return nil, false, err
	}
	proceed, err := access.Authorize(op, caller, d)
	if err != nil || !proceed {
		return nil, false, err
	}
	return d, true, nil
}

// merge unions the two visibility sets by id and orders the result.
func merge(own, public []*document.Document) []*document.Document {
	seen := make(map[document.ID]struct{}, len(own)+len(public))
	out := make([]*document.Document, 0, len(own)+len(public))
	for _, set := range [][]*document.Document{own, public} {
		for _, d := range set {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	repository.SortByLastModified(out)
	return out
}

// List returns the caller's documents and every public document, each once,
// newest first.
func (s *Service) List(ctx context.Context, caller access.Caller) ([]*document.Document, error) {
	if _, err := access.Authorize(access.OpList, caller, nil); err != nil {
		return nil, err
	}
	own, err := s.repo.List(ctx, repository.OwnedBy(caller.String()))
	if err != nil {
		return nil, fmt.Errorf("list own documents: %w", err)
	}
	public, err := s.repo.List(ctx, repository.PublicDocs())
	if err != nil {
		return nil, fmt.Errorf("list public documents: %w", err)
	}
	return merge(own, public), nil
}

// Search matches q against titles within the same two sets as List. A blank
// query matches nothing.
func (s *Service) Search(ctx context.Context, caller access.Caller, q string) ([]*document.Document, error) {
	if _, err := access.Authorize(access.OpSearch, caller, nil); err != nil {
		return nil, err
	}
	terms := document.SearchTerms(q)
	if len(terms) == 0 {
		return []*document.Document{}, nil
	}
	own, err := s.repo.Search(ctx, repository.OwnedBy(caller.String()), terms)
	if err != nil {
		return nil, fmt.Errorf("search own documents: %w", err)
	}
	public, err := s.repo.Search(ctx, repository.PublicDocs(), terms)
	if err != nil {
		return nil, fmt.Errorf("search public documents: %w", err)
	}
	return merge(own, public), nil
}

// Get returns nil without error when id does not exist.
func (s *Service) Get(ctx context.Context, caller access.Caller, id document.ID) (*document.Document, error) {
	d, _, err := s.load(ctx, access.OpGet, caller, id)
	return d, err
}

func (s *Service) Create(ctx context.Context, caller access.Caller, title string, isPublic bool) (document.ID, error) {
	if _, err := access.Authorize(access.OpCreate, caller, nil); err != nil {
		return "", err
	}
	t, ok := document.NormalizeTitle(title)
	if !ok {
		return "", apperr.New(apperr.CodeInvalidArgument, "title must not be empty")
	}
	at := document.NextModified(time.Time{}, s.now())
	d := &document.Document{
		ID:           document.NewID(),
		Title:        t,
		IsPublic:     isPublic,
		CreatedBy:    caller.String(),
		CreatedAt:    at,
		LastModified: at,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	metrics.DocumentMutations.WithLabelValues(string(access.OpCreate)).Inc()
	logger.Infow("document created", "documentId", d.ID, "caller", caller, "public", isPublic)
	return d.ID, nil
}

func (s *Service) update(ctx context.Context, op access.Operation, caller access.Caller, id document.ID, p document.Patch) error {
	d, _, err := s.load(ctx, op, caller, id)
	if err != nil {
		return err
	}
	p.LastModified = document.NextModified(d.LastModified, s.now())
	if _, err := s.repo.Update(ctx, id, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("update document %s: %w", id, err)
	}
	metrics.DocumentMutations.WithLabelValues(string(op)).Inc()
	logger.Infow("document updated", "documentId", id, "caller", caller, "op", op)
	return nil
}

func (s *Service) UpdateTitle(ctx context.Context, caller access.Caller, id document.ID, title string) error {
	if err := access.RequireCaller(caller); err != nil {
		return err
	}
	t, ok := document.NormalizeTitle(title)
	if !ok {
		return apperr.New(apperr.CodeInvalidArgument, "title must not be empty")
	}
	return s.update(ctx, access.OpUpdateTitle, caller, id, document.Patch{Title: &t})
}

func (s *Service) UpdateVisibility(ctx context.Context, caller access.Caller, id document.ID, isPublic bool) error {
	return s.update(ctx, access.OpUpdateVisibility, caller, id, document.Patch{IsPublic: &isPublic})
}

// Delete removes the document and announces it so dependent state (the
// sync checkpoint, open realtime channels) goes with it.
func (s *Service) Delete(ctx context.Context, caller access.Caller, id document.ID) error {
	if _, _, err := s.load(ctx, access.OpDelete, caller, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	metrics.DocumentMutations.WithLabelValues(string(access.OpDelete)).Inc()
	logger.Infow("document deleted", "documentId", id, "caller", caller)
	s.bus.PublishDocumentDeleted(ctx, events.DocumentDeleted{DocumentID: id, Caller: caller})
	return nil
}

// Touch refreshes lastModified for any reader. Missing documents and callers
// without read access are skipped without error.
func (s *Service) Touch(ctx context.Context, caller access.Caller, id document.ID) error {
	d, proceed, err := s.load(ctx, access.OpTouch, caller, id)
	if err != nil || !proceed {
		return err
	}
	err = s.repo.Touch(ctx, id, document.NextModified(d.LastModified, s.now()))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("touch document %s: %w", id, err)
	}
	metrics.DocumentMutations.WithLabelValues(string(access.OpTouch)).Inc()
	return nil
}
