package redisstore_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	remember "github.com/goliatone/go-remember"
	"github.com/goliatone/go-remember/store/redisstore"
	"github.com/goliatone/go-remember/store/storetest"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisClient connects to REMEMBER_REDIS_ADDR or skips the test
func redisClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("REMEMBER_REDIS_ADDR"))
	if addr == "" {
		t.Skip("REMEMBER_REDIS_ADDR not set")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return rdb
}

// testPrefix isolates keys of a single test and removes them afterwards
func testPrefix(t *testing.T, rdb redis.UniversalClient) string {
	t.Helper()
	prefix := "remember-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := rdb.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})
	return prefix
}

func TestStoreContract(t *testing.T) {
	rdb := redisClient(t)
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return redisstore.NewStore(rdb, redisstore.WithPrefix(testPrefix(t, rdb)))
	})
}

func TestStoreAppliesTTL(t *testing.T) {
	rdb := redisClient(t)
	prefix := testPrefix(t, rdb)
	store := redisstore.NewStore(rdb, redisstore.WithPrefix(prefix), redisstore.WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, store.CreateNewToken(ctx, remember.PersistentToken{Username: "alice", Series: "series-1", Token: "t1", LastUsed: time.Now()}))

	ttl, err := rdb.PTTL(ctx, prefix+"series:series-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	ttl, err = rdb.PTTL(ctx, prefix+"user:alice").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStoreWithoutTTLKeepsEntries(t *testing.T) {
	rdb := redisClient(t)
	prefix := testPrefix(t, rdb)
	store := redisstore.NewStore(rdb, redisstore.WithPrefix(prefix), redisstore.WithTTL(0))
	ctx := context.Background()

	require.NoError(t, store.CreateNewToken(ctx, remember.PersistentToken{Username: "alice", Series: "series-1", Token: "t1", LastUsed: time.Now()}))

	ttl, err := rdb.PTTL(ctx, prefix+"series:series-1").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestStoreIsNotAPurger(t *testing.T) {
	var store any = redisstore.NewStore(redis.NewClient(&redis.Options{}))
	_, ok := store.(remember.ExpiredTokenPurger)
	assert.False(t, ok)
}
