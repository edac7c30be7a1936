// Package cachemanager provides a small TTL cache abstraction. The
// sessions service wraps its repository reads in a ReadThroughCache so
// repeated find-by-kernel-ID lookups during kernel orchestration stay
// in memory instead of hitting the database.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a TTL key-value cache. Implementations must be safe
// for concurrent use.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
