// Package access decides what a caller may do with a document. Everything
// here is pure: no I/O, no clocks, no logging.
package access

import (
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/document"
)

// Caller is an already-authenticated principal id. The zero value means no
// identity could be resolved.
type Caller string

// Anonymous is the absent caller.
const Anonymous Caller = ""

func (c Caller) Authenticated() bool { return c != Anonymous }

func (c Caller) String() string { return string(c) }

// Owns reports whether c created doc.
func (c Caller) Owns(doc *document.Document) bool {
	return c.Authenticated() && doc != nil && string(c) == doc.CreatedBy
}

// CanRead is true for public documents and for the owner of a private one.
// Readers may also co-edit content through the sync checkpoint.
func CanRead(c Caller, doc *document.Document) bool {
	if !c.Authenticated() || doc == nil {
		return false
	}
	return doc.IsPublic || c.Owns(doc)
}

// CanWrite covers metadata: title, visibility and deletion. Owner only.
func CanWrite(c Caller, doc *document.Document) bool {
	return c.Owns(doc)
}

// RequireCaller fails with AuthenticationRequired for the anonymous caller.
func RequireCaller(c Caller) error {
	if !c.Authenticated() {
		return apperr.ErrAuthenticationRequired
	}
	return nil
}
