// Package checkpoint holds the versioned content state of a document: a
// compacted snapshot plus the step-batches accepted since.
package checkpoint

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
)

var (
	// ErrConflict means the declared base version is not the current one.
	ErrConflict = errors.New("checkpoint: base version does not match current version")
	// ErrStale means the requested step range was compacted away or lies in
	// the future; the client has to reload the snapshot.
	ErrStale = errors.New("checkpoint: requested version is outside the step log")
)

// StepBatch is one accepted submission. Steps are opaque to the server.
type StepBatch struct {
	BaseVersion int64             `json:"baseVersion"`
	ClientID    string            `json:"clientId"`
	Author      string            `json:"author"`
	Steps       []json.RawMessage `json:"steps"`
	AcceptedAt  time.Time         `json:"acceptedAt"`
}

// Snapshot is the compacted content and the version it was taken at.
type Snapshot struct {
	DocumentID document.ID     `json:"documentId"`
	Version    int64           `json:"version"`
	Content    json.RawMessage `json:"content"`
	UpdatedAt  time.Time       `json:"updatedAt,omitempty"`
}

// State is the checkpoint of one document. Steps[i] has base version
// SnapshotVersion+i, so Version() == SnapshotVersion+len(Steps).
//
// The zero State (with DocumentID set) is the uninitialized checkpoint:
// empty content at version 0.
type State struct {
	DocumentID      document.ID     `json:"documentId"`
	SnapshotVersion int64           `json:"snapshotVersion"`
	Content         json.RawMessage `json:"content"`
	Steps           []StepBatch     `json:"steps"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Version is the current version: one per accepted commit.
func (s *State) Version() int64 { return s.SnapshotVersion + int64(len(s.Steps)) }

// Initialized reports whether anything was ever committed.
func (s *State) Initialized() bool { return s.Version() > 0 }

func (s *State) Snapshot() Snapshot {
	return Snapshot{DocumentID: s.DocumentID, Version: s.SnapshotVersion, Content: s.Content, UpdatedAt: s.UpdatedAt}
}

// StepsSince returns the batches with base version >= since, oldest first.
func (s *State) StepsSince(since int64) ([]StepBatch, error) {
	if since < s.SnapshotVersion || since > s.Version() {
		return nil, ErrStale
	}
	out := make([]StepBatch, len(s.Steps)-int(since-s.SnapshotVersion))
	copy(out, s.Steps[since-s.SnapshotVersion:])
	return out, nil
}

// Append accepts b when its base version is the current version.
func (s *State) Append(b StepBatch) error {
	if b.BaseVersion != s.Version() {
		return ErrConflict
	}
	s.Steps = append(s.Steps, b)
	s.UpdatedAt = b.AcceptedAt
	return nil
}

// Compact replaces the content with a snapshot taken at base, which must be
// the current version. The snapshot is stored at base+1 and the log cleared.
func (s *State) Compact(base int64, content json.RawMessage, at time.Time) error {
	if base != s.Version() {
		return ErrConflict
	}
	s.SnapshotVersion = base + 1
	s.Content = content
	s.Steps = nil
	s.UpdatedAt = at
	return nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Content = append(json.RawMessage(nil), s.Content...)
	c.Steps = make([]StepBatch, len(s.Steps))
	for i, b := range s.Steps {
		b.Steps = append([]json.RawMessage(nil), b.Steps...)
		c.Steps[i] = b
	}
	return &c
}
