// Package cache provides the key/value store used to memoize fetched skill
// content. Backends are interchangeable behind the Backend interface; the
// in-process MemoryCache is the only implementation shipped.
package cache

import (
	"context"
	"time"
)

// DefaultTTL asks the backend to apply its configured default time-to-live.
const DefaultTTL time.Duration = -1 << 63

// Backend is a key/value store with per-entry expiry.
//
// A ttl of DefaultTTL uses the backend default, a ttl of zero or below (other
// than DefaultTTL) stores the value without expiry.
type Backend interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string) bool
	Exists(ctx context.Context, key string) bool
	Clear(ctx context.Context)
	Stats(ctx context.Context) Stats
	Close() error
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size,omitempty"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Deletes   int64   `json:"deletes"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}
