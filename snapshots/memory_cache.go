package snapshots

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

type cacheEntry struct {
	snapshot eventstore.Snapshot
	cachedAt time.Time
}

// MemoryCache is an in-process Cache bounded by entry count and TTL.
//
// Reads go through a sync.Map, so concurrent lookups never contend on a
// global lock. When the capacity is exceeded, the entry with the oldest
// cache time is evicted; expired entries are dropped lazily on lookup.
type MemoryCache struct {
	entries  sync.Map // StreamIDString -> cacheEntry
	size     atomic.Int64
	capacity int
	ttl      time.Duration
	clock    func() time.Time
}

// NewMemoryCache creates a MemoryCache holding at most capacity entries.
// A capacity of zero or below disables the bound, a TTL of zero disables expiry.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		ttl:      ttl,
		clock:    time.Now,
	}
}

// Get returns the cached snapshot of the stream, or (nil, nil) when the
// stream is not cached or its entry has expired.
func (c *MemoryCache) Get(_ context.Context, streamID eventstore.StreamIDString) (*eventstore.Snapshot, error) {
	value, found := c.entries.Load(streamID)
	if !found {
		return nil, nil
	}

	entry := value.(cacheEntry)

	if c.ttl > 0 && c.clock().Sub(entry.cachedAt) > c.ttl {
		if _, loaded := c.entries.LoadAndDelete(streamID); loaded {
			c.size.Add(-1)
		}

		return nil, nil
	}

	snapshot := copySnapshot(entry.snapshot)

	return &snapshot, nil
}

// Set caches the snapshot as the latest capture of its stream, evicting the
// oldest entry when the capacity bound is exceeded.
func (c *MemoryCache) Set(_ context.Context, snapshot eventstore.Snapshot) error {
	entry := cacheEntry{
		snapshot: copySnapshot(snapshot),
		cachedAt: c.clock(),
	}

	if _, loaded := c.entries.Swap(snapshot.StreamID, entry); !loaded {
		c.size.Add(1)
	}

	for c.capacity > 0 && c.size.Load() > int64(c.capacity) {
		if !c.evictOldest() {
			break
		}
	}

	return nil
}

// Delete removes the cached snapshot of the stream, if any.
func (c *MemoryCache) Delete(_ context.Context, streamID eventstore.StreamIDString) error {
	if _, loaded := c.entries.LoadAndDelete(streamID); loaded {
		c.size.Add(-1)
	}

	return nil
}

// Clear removes all cached snapshots.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.entries.Range(func(key, _ any) bool {
		if _, loaded := c.entries.LoadAndDelete(key); loaded {
			c.size.Add(-1)
		}

		return true
	})

	return nil
}

// Len returns the number of currently cached entries.
func (c *MemoryCache) Len() int {
	return int(c.size.Load())
}

// evictOldest drops the entry with the oldest cache time. Concurrent evictors
// may race for the same victim; LoadAndDelete keeps the count exact either way.
func (c *MemoryCache) evictOldest() bool {
	var (
		oldestKey any
		oldestAt  time.Time
		found     bool
	)

	c.entries.Range(func(key, value any) bool {
		entry := value.(cacheEntry)
		if !found || entry.cachedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.cachedAt
			found = true
		}

		return true
	})

	if !found {
		return false
	}

	if _, loaded := c.entries.LoadAndDelete(oldestKey); loaded {
		c.size.Add(-1)
	}

	return true
}

// copySnapshot detaches the state payload, so cached bytes can not be mutated
// through slices held by callers.
func copySnapshot(snapshot eventstore.Snapshot) eventstore.Snapshot {
	detached := snapshot

	if snapshot.State != nil {
		detached.State = make([]byte, len(snapshot.State))
		copy(detached.State, snapshot.State)
	}

	return detached
}
