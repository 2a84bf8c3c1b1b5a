package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return store.NewRedisStore(client, "warden:"), mr
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) (store.KeyedStore, func(time.Duration)) {
		s, mr := newMiniredisStore(t)
		return s, mr.FastForward
	})
}

func TestRedisStore_KeysArePrefixed(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t)

	ok, err := s.CompareAndSwap(ctx, "attempt:alice", 0, []byte(`{"failed_count":1}`), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, mr.Exists("warden:attempt:alice"))
	assert.Equal(t, `{"failed_count":1}`, mr.HGet("warden:attempt:alice", "d"))

	ttl := mr.TTL("warden:attempt:alice")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStore_CorruptVersion(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t)

	mr.HSet("warden:broken", "d", "x", "v", "not-a-number")

	_, err := s.Get(ctx, "broken")
	assert.Error(t, err)
}

func TestNewRedisClient_EmptyURL(t *testing.T) {
	_, err := store.NewRedisClient(context.Background(), "")
	assert.Error(t, err)
}

func TestNewRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := store.NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()
}

func TestRedisStore_HealthCheck(t *testing.T) {
	s, mr := newMiniredisStore(t)

	assert.NoError(t, s.HealthCheck(context.Background()))

	mr.SetError("LOADING dataset in memory")
	assert.Error(t, s.HealthCheck(context.Background()))
}
