package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gogotex/collabdocs/internal/checkpoint"
	"github.com/gogotex/collabdocs/internal/document"
)

// Store persists checkpoints. Writes are compare-and-swap on the version:
// AppendSteps and Compact fail with checkpoint.ErrConflict unless their base
// equals the version at commit time, so at most one writer advances from any
// given version.
type Store interface {
	// Load returns the checkpoint of id, or an uninitialized state.
	Load(ctx context.Context, id document.ID) (*checkpoint.State, error)
	// AppendSteps returns the new version.
	AppendSteps(ctx context.Context, id document.ID, b checkpoint.StepBatch) (int64, error)
	// Compact returns the new version.
	Compact(ctx context.Context, id document.ID, base int64, content json.RawMessage, at time.Time) (int64, error)
	// Delete drops the checkpoint. Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, id document.ID) error
}
