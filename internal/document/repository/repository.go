package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Filter selects one of the two visibility sets a query runs over: the
// documents created by Owner, or all public documents.
type Filter struct {
	Owner  string
	Public bool
}

// OwnedBy selects every document (any visibility) created by owner.
func OwnedBy(owner string) Filter { return Filter{Owner: owner} }

// PublicDocs selects every public document.
func PublicDocs() Filter { return Filter{Public: true} }

func (f Filter) match(d *document.Document) bool {
	if f.Public {
		return d.IsPublic
	}
	return d.CreatedBy == f.Owner
}

// Repository persists document metadata records. Every method is atomic with
// respect to the record it touches. Lookups of unknown ids return ErrNotFound.
type Repository interface {
	Create(ctx context.Context, d *document.Document) error
	Get(ctx context.Context, id document.ID) (*document.Document, error)
	List(ctx context.Context, f Filter) ([]*document.Document, error)
	// Search returns documents of f whose title contains every term.
	Search(ctx context.Context, f Filter, terms []string) ([]*document.Document, error)
	// Update applies p and returns the updated record. LastModified only
	// moves forward.
	Update(ctx context.Context, id document.ID, p document.Patch) (*document.Document, error)
	// Touch sets lastModified to at when at is later than the stored value.
	Touch(ctx context.Context, id document.ID, at time.Time) error
	Delete(ctx context.Context, id document.ID) error
}

// SortByLastModified orders documents newest first, ties by id.
func SortByLastModified(docs []*document.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].LastModified.Equal(docs[j].LastModified) {
			return docs[i].LastModified.After(docs[j].LastModified)
		}
		return docs[i].ID < docs[j].ID
	})
}
