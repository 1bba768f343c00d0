// Package cache defines the TTL key-value port used for current-location and
// session-snapshot reads, with in-memory and Redis implementations.
package cache

import (
	"context"
	"time"
)

// Cache is the TTL key-value port. Implementations must be safe for
// concurrent use. Get returns (nil, false, nil) on a clean miss; an error
// means the backend itself is unavailable.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
