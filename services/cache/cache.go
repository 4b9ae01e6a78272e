package cache

import (
	"time"
)

// CacheService represents a generic cache service. The crawler uses it as
// a cross-run rate-limit guard: a 429 from the source leaves a block
// marker whose TTL outlives the process, so an overlapping scheduled run
// backs off instead of hammering the source again.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// GuardKey is the block-marker key for a source.
func GuardKey(source string) string {
	return source + "_rate_limited"
}
