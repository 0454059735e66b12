package directory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spscan/database"
	"spscan/domain/sharepoint"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()

	config := database.Config{
		Path:              filepath.Join(t.TempDir(), "cache_test.db"),
		MaxOpenConns:      4,
		MaxIdleConns:      2,
		ConnMaxLifetime:   time.Minute,
		ConnMaxIdleTime:   time.Minute,
		BusyTimeoutMs:     5000,
		EnableForeignKeys: true,
		EnableWAL:         true,
	}

	db, err := database.New(config, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testEntry(groupID string) *CacheEntry {
	return &CacheEntry{
		GroupID: groupID,
		Title:   "Engineering",
		Kind:    sharepoint.GroupKindSecurityGroup,
		Members: []sharepoint.Principal{
			{LoginName: "alice@contoso.com", Title: "Alice Adams", Email: "alice@contoso.com"},
			{LoginName: "bob@contoso.com", Title: "Bob Brown", Email: "bob@contoso.com"},
		},
		ResolvedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestGroupCache_Get_Miss(t *testing.T) {
	cache := NewGroupCache(newTestDatabase(t))

	entry, ok, err := cache.Get(context.Background(), "missing-group")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestGroupCache_PutThenGet_RoundTrip(t *testing.T) {
	cache := NewGroupCache(newTestDatabase(t))
	want := testEntry("group-1")

	require.NoError(t, cache.Put(context.Background(), want))

	got, ok, err := cache.Get(context.Background(), "group-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.Members, got.Members)
}

func TestGroupCache_Put_Overwrites(t *testing.T) {
	cache := NewGroupCache(newTestDatabase(t))
	ctx := context.Background()

	first := testEntry("group-1")
	require.NoError(t, cache.Put(ctx, first))

	second := testEntry("group-1")
	second.Title = "Engineering (renamed)"
	second.Members = second.Members[:1]
	require.NoError(t, cache.Put(ctx, second))

	got, ok, err := cache.Get(ctx, "group-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Engineering (renamed)", got.Title)
	assert.Len(t, got.Members, 1)
}

func TestGroupCache_Get_CorruptRow(t *testing.T) {
	db := newTestDatabase(t)
	cache := NewGroupCache(db)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testEntry("group-1")))

	// Corrupt the membership JSON behind the cache's back.
	_, err := db.WriteDB().ExecContext(ctx,
		`UPDATE directory_groups SET members = 'not json' WHERE group_id = ?`, "group-1")
	require.NoError(t, err)

	entry, ok, err := cache.Get(ctx, "group-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)

	// The corrupt row must be gone, not just skipped.
	var count int
	require.NoError(t, db.ReadDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM directory_groups WHERE group_id = ?`, "group-1").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestGroupCache_InvalidateAll_ReturnsCount(t *testing.T) {
	cache := NewGroupCache(newTestDatabase(t))
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testEntry("group-1")))
	require.NoError(t, cache.Put(ctx, testEntry("group-2")))
	require.NoError(t, cache.Put(ctx, testEntry("group-3")))

	count, err := cache.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// A second invalidation finds nothing.
	count, err = cache.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
