// Package rediscache provides a Redis-backed snapshot cache, so multiple
// processes can share the latest-snapshot-per-stream lookups. It implements
// the snapshots.Cache contract; entry lifetime is delegated to Redis TTLs.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Default cache tuning.
const (
	DefaultKeyPrefix = "eventstore:snapshot:"
	DefaultTTL       = time.Hour

	scanBatchSize = 100
)

// Sentinel errors of the rediscache package, checkable with errors.Is.
var (
	// ErrNilClientSupplied is returned when a nil Redis client is supplied.
	ErrNilClientSupplied = errors.New("nil redis client supplied")

	// ErrEmptyKeyPrefixSupplied is returned when an empty key prefix is supplied,
	// Clear would have to scan the whole keyspace without one.
	ErrEmptyKeyPrefixSupplied = errors.New("empty key prefix supplied")
)

// snapshotRecord is the wire form of a cached snapshot. The stream ID lives
// in the Redis key.
type snapshotRecord struct {
	Version   uint            `json:"version"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cache is a snapshots.Cache backed by Redis.
type Cache struct {
	client    redis.Cmdable
	ttl       time.Duration
	keyPrefix string
}

// Option configures a Cache.
type Option func(*Cache) error

// WithTTL sets the lifetime of cached entries. A TTL of zero keeps entries
// until they are replaced or deleted.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) error {
		c.ttl = ttl

		return nil
	}
}

// WithKeyPrefix sets the key namespace of this cache.
func WithKeyPrefix(keyPrefix string) Option {
	return func(c *Cache) error {
		if keyPrefix == "" {
			return ErrEmptyKeyPrefixSupplied
		}

		c.keyPrefix = keyPrefix

		return nil
	}
}

// New creates a Cache on top of the given Redis client.
func New(client redis.Cmdable, options ...Option) (*Cache, error) {
	if client == nil {
		return nil, ErrNilClientSupplied
	}

	cache := &Cache{
		client:    client,
		ttl:       DefaultTTL,
		keyPrefix: DefaultKeyPrefix,
	}

	for _, option := range options {
		if err := option(cache); err != nil {
			return nil, err
		}
	}

	return cache, nil
}

// Get returns the cached snapshot of the stream, or (nil, nil) when the
// stream is not cached or its entry has expired.
func (c *Cache) Get(ctx context.Context, streamID eventstore.StreamIDString) (*eventstore.Snapshot, error) {
	payload, err := c.client.Get(ctx, c.key(streamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	record := snapshotRecord{}
	if err := jsoniter.ConfigFastest.Unmarshal(payload, &record); err != nil {
		return nil, err
	}

	snapshot := eventstore.Snapshot{
		StreamID:  streamID,
		Version:   record.Version,
		State:     record.State,
		CreatedAt: record.CreatedAt,
	}

	return &snapshot, nil
}

// Set caches the snapshot as the latest capture of its stream.
func (c *Cache) Set(ctx context.Context, snapshot eventstore.Snapshot) error {
	record := snapshotRecord{
		Version:   snapshot.Version,
		State:     snapshot.State,
		CreatedAt: snapshot.CreatedAt,
	}

	payload, err := jsoniter.ConfigFastest.Marshal(record)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.key(snapshot.StreamID), payload, c.ttl).Err()
}

// Delete removes the cached snapshot of the stream, if any.
func (c *Cache) Delete(ctx context.Context, streamID eventstore.StreamIDString) error {
	return c.client.Del(ctx, c.key(streamID)).Err()
}

// Clear removes every cached snapshot in this cache's key namespace.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", scanBatchSize).Iterator()

	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}

	return iter.Err()
}

func (c *Cache) key(streamID eventstore.StreamIDString) string {
	return c.keyPrefix + streamID
}
