// Package cache provides the injected cache component used for permission
// lookups and rate-limit counters. Implementations carry an explicit TTL
// and a prefix invalidation hook; there is no module-level cache state in
// the engine.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value store. Values must be JSON-serializable so the
// Redis implementation can round-trip them.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)

	// Invalidate removes every key with the given prefix. Used as the
	// invalidation hook when underlying data (roles, rules) changes.
	Invalidate(ctx context.Context, prefix string)
}
