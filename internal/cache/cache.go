// Package cache provides the non-authoritative key/value cache that sits in
// front of the task store. Entries may disappear at any time; callers treat
// every failure as a miss.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the cache cannot serve a request, for
// example after it has been closed.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is a TTL key/value cache with prefix invalidation.
type Cache interface {
	// Set stores value under key. A ttl <= 0 means no expiry. When Set
	// returns nil the value is visible to subsequent Gets.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (any, bool, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// RemoveByPrefix deletes every key that starts with prefix.
	RemoveByPrefix(ctx context.Context, prefix string) error
}
