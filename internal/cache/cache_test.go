package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

func newTestCache(t *testing.T) (*Cache, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st), st
}

func TestKey_DeterministicAndDistinct(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("a", "b"), Key("a", "c"))
	// Parameter boundaries matter: ("ab","c") must differ from ("a","bc").
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}

func TestDirectoryKey_CaseInsensitive(t *testing.T) {
	assert.Equal(t, DirectoryKey("Plumbers", "Austin TX"), DirectoryKey("plumbers", "austin tx"))
	assert.NotEqual(t, DirectoryKey("plumbers", "austin"), DirectoryKey("plumbers", "dallas"))
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key := DirectoryKey("plumbers", "austin")
	c.Set(ctx, key, CategoryDirectory, []byte("payload"), DirectoryTTL)

	got := c.Get(ctx, key, CategoryDirectory)
	assert.Equal(t, []byte("payload"), got)
}

func TestCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	got := c.Get(context.Background(), Key("nothing"), CategoryDirectory)
	assert.Nil(t, got)
}

func TestCache_Get_ExpiredEntryDeletedAndMissed(t *testing.T) {
	c, st := newTestCache(t)
	ctx := context.Background()

	key := Key("stale")
	expired := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.CacheSet(ctx, model.CacheEntry{
		Key: key, Category: CategoryDirectory, Payload: []byte("old"),
		ExpiresAt: &expired, CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour),
	}))

	got := c.Get(ctx, key, CategoryDirectory)
	assert.Nil(t, got)

	// Lazy expiry removed the row.
	entry, err := st.CacheGet(ctx, key, CategoryDirectory)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	c, st := newTestCache(t)
	ctx := context.Background()

	key := EnrichmentKey("https://example.com")
	c.Set(ctx, key, CategoryEnrichment, []byte("profile"), EnrichmentTTL)

	entry, err := st.CacheGet(ctx, key, CategoryEnrichment)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.ExpiresAt)

	got := c.Get(ctx, key, CategoryEnrichment)
	assert.Equal(t, []byte("profile"), got)
}

func TestCache_JSONRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}
	key := Key("json")
	c.SetJSON(ctx, key, CategoryBusiness, payload{Name: "Acme", Score: 9}, BusinessTTL)

	var got payload
	require.True(t, c.GetJSON(ctx, key, CategoryBusiness, &got))
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, 9, got.Score)
}

func TestCache_GetJSON_CorruptPayloadTreatedAsMiss(t *testing.T) {
	c, st := newTestCache(t)
	ctx := context.Background()

	key := Key("corrupt")
	c.Set(ctx, key, CategoryBusiness, []byte("{not json"), BusinessTTL)

	var dest map[string]any
	assert.False(t, c.GetJSON(ctx, key, CategoryBusiness, &dest))

	// Corrupt entries are dropped so the next write starts clean.
	entry, err := st.CacheGet(ctx, key, CategoryBusiness)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCache_CategoriesAreIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key := Key("shared")
	c.Set(ctx, key, CategoryDirectory, []byte("dir"), DirectoryTTL)
	c.Set(ctx, key, CategoryEmail, []byte("email"), EmailTTL)

	assert.Equal(t, []byte("dir"), c.Get(ctx, key, CategoryDirectory))
	assert.Equal(t, []byte("email"), c.Get(ctx, key, CategoryEmail))
}

func TestCache_Sweep(t *testing.T) {
	c, st := newTestCache(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := now.Add(-time.Hour)
	require.NoError(t, st.CacheSet(ctx, model.CacheEntry{
		Key: Key("a"), Category: CategoryDirectory, Payload: []byte("a"),
		ExpiresAt: &expired, CreatedAt: now.Add(-8 * 24 * time.Hour),
	}))
	// No TTL, but written past the retention ceiling.
	require.NoError(t, st.CacheSet(ctx, model.CacheEntry{
		Key: Key("b"), Category: CategoryEnrichment, Payload: []byte("b"),
		CreatedAt: now.Add(-91 * 24 * time.Hour),
	}))
	c.Set(ctx, Key("c"), CategoryEmail, []byte("c"), EmailTTL)

	deleted, err := c.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	assert.NotNil(t, c.Get(ctx, Key("c"), CategoryEmail))
}

func TestCache_MessageMarkerIdempotency(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key := MessageKey("msg-abc-123")
	assert.Nil(t, c.Get(ctx, key, CategoryMessage))

	c.Set(ctx, key, CategoryMessage, []byte("1"), MessageTTL)
	assert.NotNil(t, c.Get(ctx, key, CategoryMessage))
}
