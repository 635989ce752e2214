// Package cache implements the versioned, TTL-bounded read cache that
// sits in front of the product store. Entries are tagged with the key
// version observed before the backing read; an Invalidate between that
// read and the write-back advances the version, so the stale write-back
// is ignored by every later Get instead of resurrecting old data.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	value     []byte
	version   uint64
	expiresAt time.Time
}

type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	versions map[string]uint64
	listGen  uint64

	now func() time.Time
}

func New() *Cache {
	return &Cache{
		entries:  make(map[string]entry),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
}

// ProductKey is the cache key for a single product snapshot.
func ProductKey(id uuid.UUID) string {
	return fmt.Sprintf("product:%s", id)
}

// ListKey is the cache key for a product listing page. The listing
// generation is part of the key: any product write bumps the generation,
// so every previously cached page stops being addressable and in-flight
// list read-backs land on keys nothing will read again.
func ListKey(gen uint64, skip, limit int) string {
	return fmt.Sprintf("product-list:%d:%d:%d", gen, skip, limit)
}

// Get returns the cached value for key if it is present, unexpired, and
// its version tag still matches the key's current version.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	current := c.versions[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if e.version != current || !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresh Put may have replaced it.
		if stale, still := c.entries[key]; still && stale.version == e.version {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Snapshot returns the current version for key. Readers must take a
// snapshot before fetching from the backing store and hand it to Put.
func (c *Cache) Snapshot(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[key]
}

// Put stores value under key, tagged with the reader's snapshot version.
// If the key was invalidated after the snapshot was taken the entry is
// stored dead: the version mismatch makes every subsequent Get miss.
func (c *Cache) Put(key string, value []byte, ttl time.Duration, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:     value,
		version:   version,
		expiresAt: c.now().Add(ttl),
	}
}

// Invalidate advances the version for key rather than deleting the
// entry, so racing write-backs based on pre-invalidation reads cannot
// resurrect stale data.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[key]++
	delete(c.entries, key)
	c.evictExpiredLocked()
}

// ListGeneration returns the current listing generation.
func (c *Cache) ListGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listGen
}

// BumpListGeneration invalidates every cached listing at once. Coarse
// but race-free: correctness over hit rate.
func (c *Cache) BumpListGeneration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listGen++
	c.evictExpiredLocked()
}

// evictExpiredLocked drops every entry past its deadline. Lazy deletion
// in Get only covers keys that are still read; listing pages under old
// generations stop being addressable, so without this sweep they would
// sit in the map forever. Running it on the write path bounds the map
// to one TTL window of writes. Callers hold c.mu.
func (c *Cache) evictExpiredLocked() {
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of stored entries, including dead ones that
// have not been swept yet.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
