package snapshots

import (
	"context"
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Default sizing of the in-process snapshot cache.
const (
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = time.Hour
)

// Cache holds the latest known snapshot per stream. Implementations must be
// safe for concurrent use; Get must not block concurrent readers on a single
// global lock. A miss is reported as (nil, nil), errors are reserved for
// backend failures.
type Cache interface {
	Get(ctx context.Context, streamID eventstore.StreamIDString) (*eventstore.Snapshot, error)
	Set(ctx context.Context, snapshot eventstore.Snapshot) error
	Delete(ctx context.Context, streamID eventstore.StreamIDString) error
	Clear(ctx context.Context) error
}

// CachingStore decorates a Store with a latest-snapshot-per-stream cache.
//
// Only unbounded lookups (maxVersion == 0) are served from the cache: a
// bounded lookup asks for a historical snapshot, which the cache does not
// track. Cache failures never fail the operation, they degrade it to plain
// store access and are logged.
type CachingStore struct {
	store  Store
	cache  Cache
	logger eventstore.Logger
}

// CachingOption configures a CachingStore.
type CachingOption func(*CachingStore) error

// WithCache replaces the default in-process cache, for example with the
// Redis-backed implementation from the rediscache package.
func WithCache(cache Cache) CachingOption {
	return func(cs *CachingStore) error {
		if cache == nil {
			return ErrNilCacheSupplied
		}

		cs.cache = cache

		return nil
	}
}

// WithLogger supplies a logger for degraded-cache warnings.
func WithLogger(logger eventstore.Logger) CachingOption {
	return func(cs *CachingStore) error {
		if logger == nil {
			return ErrNilLoggerSupplied
		}

		cs.logger = logger

		return nil
	}
}

// NewCachingStore creates a CachingStore around the given Store.
// Without options it caches in process with DefaultCacheCapacity and
// DefaultCacheTTL.
func NewCachingStore(store Store, options ...CachingOption) (*CachingStore, error) {
	if store == nil {
		return nil, ErrNilStoreSupplied
	}

	cs := &CachingStore{
		store: store,
		cache: NewMemoryCache(DefaultCacheCapacity, DefaultCacheTTL),
	}

	for _, option := range options {
		if err := option(cs); err != nil {
			return nil, err
		}
	}

	return cs, nil
}

// SaveSnapshot persists the snapshot and refreshes the cached latest capture
// of its stream.
func (cs *CachingStore) SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := cs.store.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}

	if err := cs.cache.Set(ctx, snapshot); err != nil {
		cs.logCacheDegraded("set", snapshot.StreamID, err)
	}

	return nil
}

// LoadLatestSnapshot returns the newest snapshot of the stream with version
// <= maxVersion, or nil when none exists. Unbounded lookups are answered from
// the cache when possible and refresh it on a miss.
func (cs *CachingStore) LoadLatestSnapshot(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	maxVersion eventstore.StreamVersionUint,
) (*eventstore.Snapshot, error) {

	if maxVersion != 0 {
		return cs.store.LoadLatestSnapshot(ctx, streamID, maxVersion)
	}

	cached, err := cs.cache.Get(ctx, streamID)
	if err != nil {
		cs.logCacheDegraded("get", streamID, err)
	} else if cached != nil {
		return cached, nil
	}

	snapshot, err := cs.store.LoadLatestSnapshot(ctx, streamID, 0)
	if err != nil {
		return nil, err
	}

	if snapshot != nil {
		if cacheErr := cs.cache.Set(ctx, *snapshot); cacheErr != nil {
			cs.logCacheDegraded("set", streamID, cacheErr)
		}
	}

	return snapshot, nil
}

// DeleteSnapshotsBefore prunes persisted snapshots with versions strictly
// below the given version. The cached latest snapshot is dropped when the
// pruning cut it away.
func (cs *CachingStore) DeleteSnapshotsBefore(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	version eventstore.StreamVersionUint,
) error {

	if err := cs.store.DeleteSnapshotsBefore(ctx, streamID, version); err != nil {
		return err
	}

	cached, err := cs.cache.Get(ctx, streamID)
	if err != nil {
		cs.logCacheDegraded("get", streamID, err)

		return nil
	}

	if cached != nil && cached.Version < version {
		if cacheErr := cs.cache.Delete(ctx, streamID); cacheErr != nil {
			cs.logCacheDegraded("delete", streamID, cacheErr)
		}
	}

	return nil
}

// GetSnapshotStats passes through to the underlying store.
func (cs *CachingStore) GetSnapshotStats(
	ctx context.Context,
	streamID eventstore.StreamIDString,
) (eventstore.SnapshotStats, error) {

	return cs.store.GetSnapshotStats(ctx, streamID)
}

func (cs *CachingStore) logCacheDegraded(action string, streamID eventstore.StreamIDString, err error) {
	if cs.logger == nil {
		return
	}

	cs.logger.Warn("snapshot cache degraded to store access",
		"action", action,
		"stream_id", streamID,
		"error", err.Error())
}
