package scan

import (
	"fmt"
	"time"
)

// Scope selects which scanning phases run.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeSite      Scope = "site"
	ScopeStructure Scope = "structure"
	ScopeItems     Scope = "items"
)

// IncludesGroups reports whether the site group phase runs.
func (s Scope) IncludesGroups() bool {
	return s == ScopeAll || s == ScopeSite
}

// IncludesStructure reports whether the structure phase runs.
func (s Scope) IncludesStructure() bool {
	return s == ScopeAll || s == ScopeStructure
}

// IncludesItems reports whether the broken-inheritance item phase runs.
func (s Scope) IncludesItems() bool {
	return s == ScopeAll || s == ScopeItems
}

// Request describes one scan. Validated once at entry, immutable for
// the scan's duration.
type Request struct {
	SiteID                 string     `json:"site_id"`
	Scope                  Scope      `json:"scope"`
	IncludeSubsites        bool       `json:"include_subsites"`
	ForceCacheInvalidation bool       `json:"force_cache_invalidation"`
	Parameters             *Parameters `json:"parameters,omitempty"`
}

// Validate rejects malformed requests before any remote call is made.
func (r *Request) Validate() error {
	if r.SiteID == "" {
		return fmt.Errorf("%w: site_id is required", ErrValidation)
	}
	switch r.Scope {
	case ScopeAll, ScopeSite, ScopeStructure, ScopeItems:
	case "":
		return fmt.Errorf("%w: scope is required", ErrValidation)
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrValidation, r.Scope)
	}
	if r.Parameters != nil {
		if err := r.Parameters.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}

// Status represents the lifecycle state of a scan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result is the terminal outcome handed back to the trigger caller.
type Result struct {
	SiteURL     string    `json:"site_url"`
	Status      Status    `json:"status"`
	ReportID    string    `json:"report_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Stats       Stats     `json:"stats"`
}
