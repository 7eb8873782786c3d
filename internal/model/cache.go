package model

import "time"

// CacheEntry is one row in the content-addressed cache. Key is a
// deterministic one-way hash of the semantic inputs, so identical inputs
// always hit the same entry without the inputs themselves being stored.
type CacheEntry struct {
	Key       string     `json:"key"`
	Category  string     `json:"category"`
	Payload   []byte     `json:"payload"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = no expiry
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the entry's expiry has passed at the given time.
// Entries without an expiry never report true here; the retention ceiling
// in the sweep bounds their lifetime instead.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
