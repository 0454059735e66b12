package contracts

import (
	"context"
	"errors"
)

// ErrSiteNotFound is returned by the registry when no record exists
// for the requested site ID.
var ErrSiteNotFound = errors.New("site not registered")

// SiteRecord is one registered site: the key-value record that maps a
// stable site identifier to its URL.
type SiteRecord struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// SiteRegistry resolves scan-trigger site IDs to site records. Backed
// by simple per-site records on a filesystem.
type SiteRegistry interface {
	Get(ctx context.Context, siteID string) (*SiteRecord, error)
	Put(ctx context.Context, record *SiteRecord) error
	List(ctx context.Context) ([]*SiteRecord, error)
}
