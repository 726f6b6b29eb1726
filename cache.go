package quarry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Cache is the pluggable result-cache surface used by Query.Remember.
// Implementations store opaque byte payloads; the engine handles row
// encoding.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}

// memoryEntry is one cached payload with its expiry instant. A zero
// expiry never expires.
type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a process-local Cache with per-entry TTLs. Expired
// entries are dropped lazily on read and in bulk by Prune.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache. A non-positive ttl stores the entry without
// expiry.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expires: expires}
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeletePrefix implements Cache, dropping every key under prefix.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops every expired entry.
func (c *MemoryCache) Prune() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// encodeRows packs a result set for cache storage.
func encodeRows(rows []map[string]any) ([]byte, error) {
	return msgpack.Marshal(rows)
}

// decodeRows unpacks a cached result set.
func decodeRows(data []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// cacheGroup collapses concurrent loads of the same key into a single
// storage round-trip.
var cacheGroup singleflight.Group

// cachedRows serves rows for key from the cache, loading and storing them
// on a miss. Concurrent misses for the same key share one load. A cache
// read or encode failure degrades to the loader; the query still runs.
func cachedRows(ctx context.Context, c Cache, key string, ttl time.Duration, load func() ([]map[string]any, error)) ([]map[string]any, error) {
	v, err, _ := cacheGroup.Do(key, func() (any, error) {
		if data, ok, err := c.Get(ctx, key); err == nil && ok {
			if rows, derr := decodeRows(data); derr == nil {
				return rows, nil
			}
		}
		rows, err := load()
		if err != nil {
			return nil, err
		}
		if data, err := encodeRows(rows); err == nil {
			_ = c.Set(ctx, key, data, ttl)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]map[string]any), nil
}
