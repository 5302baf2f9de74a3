package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies a document. Other records (checkpoints, presence) refer to
// their document through this type.
type ID string

func (id ID) String() string { return string(id) }

// NewID returns a fresh random document id.
func NewID() ID {
	return ID(uuid.NewString())
}

// Document is the persistent metadata record of a collaborative document.
// Content lives in the sync checkpoint, not here.
type Document struct {
	ID           ID        `json:"id" bson:"_id"`
	Title        string    `json:"title" bson:"title"`
	IsPublic     bool      `json:"isPublic" bson:"isPublic"`
	CreatedBy    string    `json:"createdBy" bson:"createdBy"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	LastModified time.Time `json:"lastModified" bson:"lastModified"`
}

// Patch lists the metadata fields an update may change. LastModified is
// always applied and must be later than the stored value.
type Patch struct {
	Title        *string
	IsPublic     *bool
	LastModified time.Time
}

// NextModified returns the lastModified value for a change made at now.
// The result is always strictly after prev.
func NextModified(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

// NormalizeTitle trims surrounding whitespace. ok is false for blank titles.
func NormalizeTitle(title string) (string, bool) {
	t := strings.TrimSpace(title)
	return t, t != ""
}

// SearchTerms splits a free-text query into lowercase terms. A blank query
// yields no terms.
func SearchTerms(q string) []string {
	return strings.Fields(strings.ToLower(q))
}

// MatchesTitle reports whether every term occurs in title, ignoring case.
func MatchesTitle(title string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	t := strings.ToLower(title)
	for _, term := range terms {
		if !strings.Contains(t, term) {
			return false
		}
	}
	return true
}
