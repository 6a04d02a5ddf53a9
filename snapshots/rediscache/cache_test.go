//go:build integration
// +build integration

package rediscache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/snapshots/rediscache"
)

func newTestCache(t *testing.T, options ...rediscache.Option) *rediscache.Cache {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	options = append([]rediscache.Option{rediscache.WithKeyPrefix("test:snapshot:")}, options...)
	cache, err := rediscache.New(client, options...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cache.Clear(context.Background())
		_ = client.Close()
	})

	return cache
}

func Test_RedisCache_New_With_Invalid_Input(t *testing.T) {
	// act + assert
	_, err := rediscache.New(nil)
	assert.ErrorIs(t, err, rediscache.ErrNilClientSupplied)

	client := redis.NewClient(&redis.Options{})
	defer client.Close()

	_, err = rediscache.New(client, rediscache.WithKeyPrefix(""))
	assert.ErrorIs(t, err, rediscache.ErrEmptyKeyPrefixSupplied)
}

func Test_RedisCache_Set_Then_Get(t *testing.T) {
	// setup
	cache := newTestCache(t)
	ctx := context.Background()

	stored, err := eventstore.BuildSnapshot("workflow-1", 100, []byte(`{"status":"running"}`))
	require.NoError(t, err)

	// act
	require.NoError(t, cache.Set(ctx, stored))
	cached, err := cache.Get(ctx, "workflow-1")

	// assert
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, stored.StreamID, cached.StreamID)
	assert.Equal(t, stored.Version, cached.Version)
	assert.JSONEq(t, string(stored.State), string(cached.State))
}

func Test_RedisCache_Get_When_The_Stream_Is_Not_Cached(t *testing.T) {
	// setup
	cache := newTestCache(t)

	// act
	cached, err := cache.Get(context.Background(), "workflow-unknown")

	// assert
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func Test_RedisCache_Delete(t *testing.T) {
	// setup
	cache := newTestCache(t)
	ctx := context.Background()

	stored, err := eventstore.BuildSnapshot("workflow-1", 100, []byte(`{"status":"running"}`))
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, stored))

	// act
	require.NoError(t, cache.Delete(ctx, "workflow-1"))

	// assert
	cached, err := cache.Get(ctx, "workflow-1")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func Test_RedisCache_Clear_Only_Touches_Its_Own_Namespace(t *testing.T) {
	// setup: two caches with distinct prefixes on the same server
	first := newTestCache(t, rediscache.WithKeyPrefix("test:snapshot:a:"))
	second := newTestCache(t, rediscache.WithKeyPrefix("test:snapshot:b:"))
	ctx := context.Background()

	stored, err := eventstore.BuildSnapshot("workflow-1", 100, []byte(`{"status":"running"}`))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, stored))
	require.NoError(t, second.Set(ctx, stored))

	// act
	require.NoError(t, first.Clear(ctx))

	// assert
	cleared, err := first.Get(ctx, "workflow-1")
	require.NoError(t, err)
	assert.Nil(t, cleared)

	untouched, err := second.Get(ctx, "workflow-1")
	require.NoError(t, err)
	assert.NotNil(t, untouched)
}

func Test_RedisCache_Entries_Expire_With_The_TTL(t *testing.T) {
	// setup
	cache := newTestCache(t, rediscache.WithTTL(100*time.Millisecond))
	ctx := context.Background()

	stored, err := eventstore.BuildSnapshot("workflow-1", 100, []byte(`{"status":"running"}`))
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, stored))

	// act
	time.Sleep(200 * time.Millisecond)

	// assert
	cached, err := cache.Get(ctx, "workflow-1")
	require.NoError(t, err)
	assert.Nil(t, cached)
}
