package cache

import (
	"context"
	"time"
)

// Cache is the best-effort fast tier in front of the durable store. A broken
// or cold cache behaves as a miss; no method surfaces an error, because
// correctness never depends on this layer.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Incr atomically increments an integer counter, creating it with the
	// given TTL on first use, and returns the new value. Returns 0 when the
	// cache is unavailable.
	Incr(ctx context.Context, key string, ttl time.Duration) int64
	Delete(ctx context.Context, key string)
}
