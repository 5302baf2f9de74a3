package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/checkpoint"
	"github.com/gogotex/collabdocs/internal/checkpoint/store"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/internal/document/repository"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/metrics"
)

// DocumentReader resolves the document a checkpoint belongs to. It returns
// repository.ErrNotFound for unknown ids.
type DocumentReader interface {
	Get(ctx context.Context, id document.ID) (*document.Document, error)
}

// Archiver keeps a copy of every accepted snapshot until the document is
// deleted.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, id document.ID, version int64, content []byte) error
	DeleteSnapshots(ctx context.Context, id document.ID) error
}

// Limits bound the size of submissions.
type Limits struct {
	MaxStepsPerBatch int
	MaxContentBytes  int
}

// DefaultLimits are used when New receives zero limits.
var DefaultLimits = Limits{MaxStepsPerBatch: 500, MaxContentBytes: 4 << 20}

// Steps is the answer to GetSteps.
type Steps struct {
	Batches []checkpoint.StepBatch `json:"batches"`
	Version int64                  `json:"version"`
}

// Snapshot is the answer to GetSnapshot: the compacted content, the version
// it was taken at, and the current version to catch up to with GetSteps.
type Snapshot struct {
	checkpoint.Snapshot
	LatestVersion int64 `json:"latestVersion"`
}

// Service gates checkpoint access on read permission for the owning
// document and announces every accepted commit on the bus.
type Service struct {
	docs     DocumentReader
	store    store.Store
	bus      *events.Bus
	archiver Archiver
	limits   Limits
	now      func() time.Time
}

type Option func(*Service)

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archiver = a } }

func WithLimits(l Limits) Option { return func(s *Service) { s.limits = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(docs DocumentReader, st store.Store, bus *events.Bus, opts ...Option) *Service {
	s := &Service{docs: docs, store: st, bus: bus, limits: DefaultLimits, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.limits.MaxStepsPerBatch <= 0 {
		s.limits.MaxStepsPerBatch = DefaultLimits.MaxStepsPerBatch
	}
	if s.limits.MaxContentBytes <= 0 {
		s.limits.MaxContentBytes = DefaultLimits.MaxContentBytes
	}
	return s
}

// Subscribe drops a document's checkpoint, and its archived snapshots, when
// the document is deleted.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.OnDocumentDeleted(func(ctx context.Context, e events.DocumentDeleted) {
		if s.archiver != nil {
			if err := s.archiver.DeleteSnapshots(ctx, e.DocumentID); err != nil {
				logger.Errorw("snapshot archive purge failed", "documentId", e.DocumentID, "error", err)
			}
		}
		if err := s.store.Delete(ctx, e.DocumentID); err != nil {
			logger.Errorw("checkpoint cascade delete failed", "documentId", e.DocumentID, "error", err)
			return
		}
		logger.Debugf("checkpoint of %s removed with its document", e.DocumentID)
	})
}

// authorize resolves the owning document and applies the policy of op.
func (s *Service) authorize(ctx context.Context, op access.Operation, caller access.Caller, id document.ID) error {
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
	_, err = access.Authorize(op, caller, d)
	return err
}

func (s *Service) load(ctx context.Context, op access.Operation, caller access.Caller, id document.ID) (*checkpoint.State, error) {
	if err := s.authorize(ctx, op, caller, id); err != nil {
		return nil, err
	}
	st, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	return st, nil
}

func (s *Service) conflict(op access.Operation, msg string) error {
	metrics.SyncConflicts.WithLabelValues(string(op)).Inc()
	return apperr.New(apperr.CodeVersionConflict, msg)
}

func (s *Service) GetSnapshot(ctx context.Context, caller access.Caller, id document.ID) (*Snapshot, error) {
	st, err := s.load(ctx, access.OpGetSnapshot, caller, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Snapshot: st.Snapshot(), LatestVersion: st.Version()}, nil
}

// GetSteps returns the batches accepted at or after since. A since that was
// compacted away, or lies ahead of the checkpoint, is a version conflict:
// the client reloads the snapshot.
func (s *Service) GetSteps(ctx context.Context, caller access.Caller, id document.ID, since int64) (*Steps, error) {
	st, err := s.load(ctx, access.OpGetSteps, caller, id)
	if err != nil {
		return nil, err
	}
	batches, err := st.StepsSince(since)
	if err != nil {
		return nil, s.conflict(access.OpGetSteps,
			fmt.Sprintf("steps since %d unavailable (snapshot %d, current %d)", since, st.SnapshotVersion, st.Version()))
	}
	return &Steps{Batches: batches, Version: st.Version()}, nil
}

func (s *Service) LatestVersion(ctx context.Context, caller access.Caller, id document.ID) (int64, error) {
	st, err := s.load(ctx, access.OpLatestVersion, caller, id)
	if err != nil {
		return 0, err
	}
	return st.Version(), nil
}

// SubmitSteps appends steps when baseVersion is the current version and
// returns the new version. Any reader of the document may submit.
func (s *Service) SubmitSteps(ctx context.Context, caller access.Caller, id document.ID, baseVersion int64, clientID string, steps []json.RawMessage) (int64, error) {
	if err := s.authorize(ctx, access.OpSubmitSteps, caller, id); err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, apperr.New(apperr.CodeInvalidArgument, "steps must not be empty")
	}
	if len(steps) > s.limits.MaxStepsPerBatch {
		return 0, apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("at most %d steps per batch", s.limits.MaxStepsPerBatch))
	}
	for i, step := range steps {
		if !json.Valid(step) {
			return 0, apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("step %d is not valid JSON", i))
		}
	}

	at := s.now().UTC()
	version, err := s.store.AppendSteps(ctx, id, checkpoint.StepBatch{
		BaseVersion: baseVersion,
		ClientID:    clientID,
		Author:      caller.String(),
		Steps:       steps,
		AcceptedAt:  at,
	})
	if errors.Is(err, checkpoint.ErrConflict) {
		return 0, s.conflict(access.OpSubmitSteps, fmt.Sprintf("base version %d is not current", baseVersion))
	}
	if err != nil {
		return 0, fmt.Errorf("append steps to %s: %w", id, err)
	}
	if err := s.dropIfOrphaned(ctx, id); err != nil {
		return 0, err
	}
	s.committed(ctx, caller, id, events.CommitSteps, version, at)
	return version, nil
}

// SubmitSnapshot compacts the log into content taken at version, which must
// be the current version. It returns the new version.
func (s *Service) SubmitSnapshot(ctx context.Context, caller access.Caller, id document.ID, version int64, content json.RawMessage) (int64, error) {
	if err := s.authorize(ctx, access.OpSubmitSnapshot, caller, id); err != nil {
		return 0, err
	}
	if len(content) == 0 || !json.Valid(content) || string(content) == "null" {
		return 0, apperr.New(apperr.CodeInvalidArgument, "content must be valid JSON")
	}
	if len(content) > s.limits.MaxContentBytes {
		return 0, apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("content exceeds %d bytes", s.limits.MaxContentBytes))
	}

	at := s.now().UTC()
	next, err := s.store.Compact(ctx, id, version, content, at)
	if errors.Is(err, checkpoint.ErrConflict) {
		return 0, s.conflict(access.OpSubmitSnapshot, fmt.Sprintf("snapshot version %d is not current", version))
	}
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", id, err)
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveSnapshot(ctx, id, next, content); err != nil {
			logger.Warnw("snapshot archive failed", "documentId", id, "version", next, "error", err)
		}
	}
	if err := s.dropIfOrphaned(ctx, id); err != nil {
		return 0, err
	}
	s.committed(ctx, caller, id, events.CommitSnapshot, next, at)
	return next, nil
}

// dropIfOrphaned undoes a commit whose document was deleted while it was
// being written: the deletion cascade may already have run, so the
// checkpoint it recreated is removed here and the caller sees NotFound.
func (s *Service) dropIfOrphaned(ctx context.Context, id document.ID) error {
	_, err := s.docs.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load document %s: %w", id, err)
	}
	logger.Infow("document deleted during commit, dropping checkpoint", "documentId", id)
	if s.archiver != nil {
		if err := s.archiver.DeleteSnapshots(ctx, id); err != nil {
			logger.Errorw("snapshot archive purge failed", "documentId", id, "error", err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("drop orphaned checkpoint %s: %w", id, err)
	}
	return apperr.ErrNotFound
}

func (s *Service) committed(ctx context.Context, caller access.Caller, id document.ID, kind events.CommitKind, version int64, at time.Time) {
	metrics.SyncCommits.WithLabelValues(string(kind)).Inc()
	logger.Debugf("checkpoint %s: %s commit by %s, version %d", id, kind, caller, version)
	s.bus.PublishContentCommitted(ctx, events.ContentCommitted{
		DocumentID: id,
		Caller:     caller,
		Kind:       kind,
		Version:    version,
		At:         at,
	})
}
