package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript swaps the hash at KEYS[1] when its version field equals
// ARGV[1] ("0" for absent). Versions are compared as strings so 64-bit
// values never pass through Lua numbers.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur == false then
  cur = '0'
end
if cur ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'd', ARGV[2], 'v', ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return 1
`)

// RedisStore is a KeyedStore shared by every instance of a multi-instance
// deployment. Expiry is native to Redis, so it needs no sweeper.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0)
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps a redis client. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// HealthCheck pings the backing server
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get returns the live entry for key
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "d", "v").Result()
	if err != nil {
		return Entry{}, fmt.Errorf("redis hmget: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, nil
	}

	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, fmt.Errorf("redis hmget: unexpected value type %T", vals[0])
	}
	rawVersion, ok := vals[1].(string)
	if !ok {
		return Entry{}, fmt.Errorf("redis hmget: unexpected version type %T", vals[1])
	}
	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("redis entry %q has corrupt version: %w", key, err)
	}

	return Entry{Value: []byte(data), Version: version}, nil
}

// CompareAndSwap writes value atomically via a Lua script
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (bool, error) {
	next := newVersion()
	for next == expected {
		next = newVersion()
	}

	ttlMs := ttl.Milliseconds()
	if ttl > 0 && ttlMs == 0 {
		ttlMs = 1
	}

	res, err := casScript.Run(ctx, s.client,
		[]string{s.key(key)},
		strconv.FormatUint(expected, 10),
		string(value),
		strconv.FormatUint(next, 10),
		ttlMs,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap: %w", err)
	}

	return res == 1, nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// newVersion returns a random non-zero version. Random versions keep a
// recreated key from repeating a version a stale reader still holds.
func newVersion() uint64 {
	for {
		if v := rand.Uint64(); v != 0 {
			return v
		}
	}
}
