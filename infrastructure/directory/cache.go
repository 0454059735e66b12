package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spscan/database"
	"spscan/domain/sharepoint"
	"spscan/logging"
)

// CacheEntry is one cached directory group resolution: the group's
// identity plus its fully-flattened user membership.
type CacheEntry struct {
	GroupID    string
	Title      string
	Kind       sharepoint.GroupKind
	Members    []sharepoint.Principal
	ResolvedAt time.Time
}

// GroupCache is a persistent, tenant-scoped cache of resolved
// directory group memberships. Entries survive across scans; repeated
// scans against a warm cache must produce identical output to a cold
// one.
type GroupCache interface {
	// Get returns the cached entry for a group id. ok is false on miss.
	Get(ctx context.Context, groupID string) (*CacheEntry, bool, error)

	// Put stores or replaces the entry for its group id. Concurrent
	// writers for the same id are safe; last write wins.
	Put(ctx context.Context, entry *CacheEntry) error

	// InvalidateAll removes every entry and returns how many were removed.
	InvalidateAll(ctx context.Context) (int64, error)
}

// sqliteGroupCache stores entries in the application database, one row
// per group with the membership as a JSON column.
type sqliteGroupCache struct {
	db     *database.Database
	logger *logging.Logger
}

// NewGroupCache creates a GroupCache over the application database.
func NewGroupCache(db *database.Database) GroupCache {
	return &sqliteGroupCache{
		db:     db,
		logger: logging.Default().WithComponent("group_cache"),
	}
}

// Get loads a cached group. A row whose membership JSON no longer
// decodes is evicted and reported as a miss rather than surfacing a
// decode error to the scan.
func (c *sqliteGroupCache) Get(ctx context.Context, groupID string) (*CacheEntry, bool, error) {
	row := c.db.ReadDB().QueryRowContext(ctx,
		`SELECT title, kind, members, resolved_at FROM directory_groups WHERE group_id = ?`,
		groupID)

	var (
		title      string
		kind       string
		membersRaw string
		resolvedAt time.Time
	)
	if err := row.Scan(&title, &kind, &membersRaw, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cached group %s: %w", groupID, err)
	}

	var members []sharepoint.Principal
	if err := json.Unmarshal([]byte(membersRaw), &members); err != nil {
		c.logger.Warn("Evicting undecodable cache row", "group_id", groupID, "error", err.Error())
		if _, delErr := c.db.WriteDB().ExecContext(ctx,
			`DELETE FROM directory_groups WHERE group_id = ?`, groupID); delErr != nil {
			return nil, false, fmt.Errorf("evict corrupt cache row %s: %w", groupID, delErr)
		}
		return nil, false, nil
	}

	return &CacheEntry{
		GroupID:    groupID,
		Title:      title,
		Kind:       sharepoint.GroupKind(kind),
		Members:    members,
		ResolvedAt: resolvedAt,
	}, true, nil
}

// Put upserts a group entry keyed by group id.
func (c *sqliteGroupCache) Put(ctx context.Context, entry *CacheEntry) error {
	membersRaw, err := json.Marshal(entry.Members)
	if err != nil {
		return fmt.Errorf("encode members of group %s: %w", entry.GroupID, err)
	}

	_, err = c.db.WriteDB().ExecContext(ctx, `
		INSERT INTO directory_groups (group_id, title, kind, member_count, members, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			member_count = excluded.member_count,
			members = excluded.members,
			resolved_at = excluded.resolved_at`,
		entry.GroupID, entry.Title, string(entry.Kind), len(entry.Members),
		string(membersRaw), entry.ResolvedAt)
	if err != nil {
		return fmt.Errorf("store cached group %s: %w", entry.GroupID, err)
	}
	return nil
}

// InvalidateAll clears the cache and returns the number of removed rows.
func (c *sqliteGroupCache) InvalidateAll(ctx context.Context) (int64, error) {
	res, err := c.db.WriteDB().ExecContext(ctx, `DELETE FROM directory_groups`)
	if err != nil {
		return 0, fmt.Errorf("invalidate group cache: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate group cache: %w", err)
	}
	c.logger.Info("Directory group cache invalidated", "removed", count)
	return count, nil
}
