// Package events carries in-process notifications between the sync
// checkpoint, the document service and the realtime hub.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/document"
)

// CommitKind tells which checkpoint operation produced a commit.
type CommitKind string

const (
	CommitSteps    CommitKind = "steps"
	CommitSnapshot CommitKind = "snapshot"
)

// ContentCommitted is emitted after the checkpoint accepted a step-batch or
// a snapshot.
type ContentCommitted struct {
	DocumentID document.ID
	Caller     access.Caller
	Kind       CommitKind
	Version    int64
	At         time.Time
}

// DocumentDeleted is emitted after a document record was removed.
type DocumentDeleted struct {
	DocumentID document.ID
	Caller     access.Caller
}

// Bus dispatches events synchronously, in subscription order, on the
// publisher's goroutine. Handlers must not block for long.
type Bus struct {
	mu        sync.RWMutex
	committed []func(context.Context, ContentCommitted)
	deleted   []func(context.Context, DocumentDeleted)
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) OnContentCommitted(h func(context.Context, ContentCommitted)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = append(b.committed, h)
}

func (b *Bus) OnDocumentDeleted(h func(context.Context, DocumentDeleted)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, h)
}

func (b *Bus) PublishContentCommitted(ctx context.Context, e ContentCommitted) {
	if b == nil {
		return
	}
	b.mu.RLock()
	hs := append([]func(context.Context, ContentCommitted){}, b.committed...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(ctx, e)
	}
}

func (b *Bus) PublishDocumentDeleted(ctx context.Context, e DocumentDeleted) {
	if b == nil {
		return
	}
	b.mu.RLock()
	hs := append([]func(context.Context, DocumentDeleted){}, b.deleted...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(ctx, e)
	}
}
