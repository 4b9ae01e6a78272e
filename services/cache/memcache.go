package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService on memcached. The crawler stores
// one small block marker per source under GuardKey; the marker's TTL is
// what actually gates overlapping runs, the value only records the wait
// that caused the block.
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService connects to the memcached instance shared by the
// scheduled runs.
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
	}
}

// Get retrieves a block marker. A cache miss returns an error, which the
// crawler reads as "not blocked".
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores a block marker that lapses after expiration.
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: guardTTLSeconds(expiration),
	})
}

// Delete removes a block marker before its TTL lapses.
func (m *MemcacheService) Delete(key string) error {
	return m.client.Delete(key)
}

// guardTTLSeconds converts a block duration to memcached's expiration
// format. memcached treats 0 as "never expires", so sub-second waits are
// floored at one second: a rate-limit marker must always lapse.
func guardTTLSeconds(d time.Duration) int32 {
	seconds := int32(d / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
