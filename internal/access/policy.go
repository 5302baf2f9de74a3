package access

import (
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/document"
)

// Operation names an entry of the public operation surface.
type Operation string

const (
	OpList             Operation = "list"
	OpSearch           Operation = "search"
	OpGet              Operation = "get"
	OpCreate           Operation = "create"
	OpUpdateTitle      Operation = "updateTitle"
	OpUpdateVisibility Operation = "updateVisibility"
	OpDelete           Operation = "delete"
	OpTouch            Operation = "touch"
	OpGetSnapshot      Operation = "getSnapshot"
	OpGetSteps         Operation = "getSteps"
	OpLatestVersion    Operation = "latestVersion"
	OpSubmitSteps      Operation = "submitSteps"
	OpSubmitSnapshot   Operation = "submitSnapshot"
	OpPresence         Operation = "presence"
)

// Permission is what an operation needs on the target document.
type Permission int

const (
	// PermAuthenticated needs a caller but no document.
	PermAuthenticated Permission = iota
	PermRead
	PermWrite
)

// Policy is one row of the policy table.
//
// SilentOnMissing and SilentOnDenied turn the NotFound and NotAuthorized
// failures into "skip without error".
type Policy struct {
	Permission      Permission
	SilentOnMissing bool
	SilentOnDenied  bool
}

// Policies is the authorization table for every operation.
var Policies = map[Operation]Policy{
	OpList:             {Permission: PermAuthenticated},
	OpSearch:           {Permission: PermAuthenticated},
	OpCreate:           {Permission: PermAuthenticated},
	OpGet:              {Permission: PermRead, SilentOnMissing: true},
	OpUpdateTitle:      {Permission: PermWrite},
	OpUpdateVisibility: {Permission: PermWrite},
	OpDelete:           {Permission: PermWrite},
	OpTouch:            {Permission: PermRead, SilentOnMissing: true, SilentOnDenied: true},
	OpGetSnapshot:      {Permission: PermRead},
	OpGetSteps:         {Permission: PermRead},
	OpLatestVersion:    {Permission: PermRead},
	OpSubmitSteps:      {Permission: PermRead},
	OpSubmitSnapshot:   {Permission: PermRead},
	OpPresence:         {Permission: PermRead},
}

// Authorize applies the policy of op. It returns proceed=false with a nil
// error when the policy says to skip silently. doc is nil when the document
// does not exist; it is ignored for PermAuthenticated operations.
func Authorize(op Operation, c Caller, doc *document.Document) (proceed bool, err error) {
	p, ok := Policies[op]
	if !ok {
		return false, apperr.New(apperr.CodeUnknown, "no policy for operation "+string(op))
	}
	if err := RequireCaller(c); err != nil {
		return false, err
	}
	if p.Permission == PermAuthenticated {
		return true, nil
	}
	if doc == nil {
		if p.SilentOnMissing {
			return false, nil
		}
		return false, apperr.ErrNotFound
	}
	allowed := CanRead(c, doc)
	if p.Permission == PermWrite {
		allowed = CanWrite(c, doc)
	}
	if allowed {
		return true, nil
	}
	if p.SilentOnDenied {
		return false, nil
	}
	return false, apperr.ErrNotAuthorized
}
