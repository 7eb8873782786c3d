// Package cache provides a content-addressed result cache over the
// store. Keys are sha256 digests of the request parameters; entries are
// namespaced by category so the same digest can serve different
// pipeline stages independently.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Cache categories. Each category carries its own TTL policy.
const (
	CategoryDirectory  = "directory_listing"
	CategoryEmail      = "email_extraction"
	CategoryBusiness   = "business_data"
	CategoryEnrichment = "enrichment"
	CategoryMessage    = "processed_message"
)

// TTLs per category. Zero means no expiry; such entries live until the
// retention ceiling removes them.
const (
	DirectoryTTL  = 7 * 24 * time.Hour
	EmailTTL      = 30 * 24 * time.Hour
	BusinessTTL   = 30 * 24 * time.Hour
	EnrichmentTTL = time.Duration(0)
	MessageTTL    = 30 * 24 * time.Hour

	// RetentionCeiling bounds every entry's lifetime regardless of TTL,
	// measured from first write.
	RetentionCeiling = 90 * 24 * time.Hour
)

// Key builds a content-addressed cache key from the request parameters.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// DirectoryKey addresses a directory search result set.
func DirectoryKey(query, location string) string {
	return Key("directory", strings.ToLower(query), strings.ToLower(location))
}

// EmailKey addresses an email extraction result for one website.
func EmailKey(websiteURL string) string {
	return Key("email", strings.ToLower(websiteURL))
}

// BusinessKey addresses the dedupe index entry for one business identity.
func BusinessKey(identity string) string {
	return Key("business", identity)
}

// EnrichmentKey addresses the enrichment result for one website. Keyed
// by URL, not content: a re-scrape whose text drifts still reuses the
// stored profile.
func EnrichmentKey(websiteURL string) string {
	return Key("enrichment", strings.ToLower(websiteURL))
}

// MessageKey addresses the processed marker for one inbound message ID.
func MessageKey(messageID string) string {
	return Key("message", messageID)
}

// Cache wraps the store's cache table with TTL policy and lazy expiry.
// Read and write failures degrade to misses and are never propagated;
// a broken cache must not break the pipeline.
type Cache struct {
	store store.Store
	log   *zap.Logger
}

func New(st store.Store) *Cache {
	return &Cache{store: st, log: zap.L().Named("cache")}
}

// Get returns the cached payload, or nil on miss. An entry past its
// expiry is deleted and reported as a miss.
func (c *Cache) Get(ctx context.Context, key, category string) []byte {
	entry, err := c.store.CacheGet(ctx, key, category)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("category", category), zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}
	if entry.Expired(time.Now().UTC()) {
		if err := c.store.CacheDelete(ctx, key, category); err != nil {
			c.log.Warn("expired entry delete failed", zap.String("category", category), zap.Error(err))
		}
		return nil
	}
	return entry.Payload
}

// Set stores the payload under the category's key with the given TTL.
// A zero TTL stores the entry without an expiry.
func (c *Cache) Set(ctx context.Context, key, category string, payload []byte, ttl time.Duration) {
	entry := model.CacheEntry{
		Key:       key,
		Category:  category,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if ttl > 0 {
		expires := time.Now().UTC().Add(ttl)
		entry.ExpiresAt = &expires
	}
	if err := c.store.CacheSet(ctx, entry); err != nil {
		c.log.Warn("cache write failed", zap.String("category", category), zap.Error(err))
	}
}

// GetJSON unmarshals a cached payload into dest, reporting whether a
// usable entry was found. A corrupt payload is dropped and treated as a
// miss.
func (c *Cache) GetJSON(ctx context.Context, key, category string, dest any) bool {
	payload := c.Get(ctx, key, category)
	if payload == nil {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		c.log.Warn("corrupt cache payload", zap.String("category", category), zap.Error(err))
		if err := c.store.CacheDelete(ctx, key, category); err != nil {
			c.log.Warn("corrupt entry delete failed", zap.String("category", category), zap.Error(err))
		}
		return false
	}
	return true
}

// SetJSON marshals v and stores it. Marshal failures are logged and
// dropped.
func (c *Cache) SetJSON(ctx context.Context, key, category string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache marshal failed", zap.String("category", category), zap.Error(err))
		return
	}
	c.Set(ctx, key, category, payload, ttl)
}

// Delete removes an entry. Used by invalidation paths; errors are
// logged and swallowed like the other cache operations.
func (c *Cache) Delete(ctx context.Context, key, category string) {
	if err := c.store.CacheDelete(ctx, key, category); err != nil {
		c.log.Warn("cache delete failed", zap.String("category", category), zap.Error(err))
	}
}

// Sweep removes expired entries and everything older than the retention
// ceiling. Unlike reads and writes, sweep errors surface to the caller:
// it runs as an operator command, not inside the pipeline.
func (c *Cache) Sweep(ctx context.Context, now time.Time) (int, error) {
	return c.store.CacheSweep(ctx, now.UTC(), now.UTC().Add(-RetentionCeiling))
}
