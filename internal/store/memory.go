package store

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
)

// DefaultShardCount spreads keys over enough locks that unrelated accounts
// and clients practically never wait on each other.
const DefaultShardCount = 32

// MemoryStore is an in-process KeyedStore for single-instance deployments.
// Keys are spread over FNV-hashed shards, each guarded by its own mutex.
type MemoryStore struct {
	shards  []*memoryShard
	clock   clock.Clock
	version atomic.Uint64
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	version   uint64
	expiresAt time.Time // zero: never
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore creates a MemoryStore with the given shard count
func NewMemoryStore(clk clock.Clock, shardCount int) *MemoryStore {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	if clk == nil {
		clk = clock.Real{}
	}

	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}

	return &MemoryStore{shards: shards, clock: clk}
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get returns the live entry for key. Expired entries are dropped lazily.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	sh := s.shard(key)
	now := s.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return Entry{}, nil
	}
	if e.expired(now) {
		delete(sh.entries, key)
		return Entry{}, nil
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return Entry{Value: value, Version: e.version}, nil
}

// CompareAndSwap writes value when the current version matches expected.
// Versions come from a store-wide counter, so a key that expires and is
// recreated never reuses a version a stale reader might still hold.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	sh := s.shard(key)
	now := s.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	var current uint64
	if e, ok := sh.entries[key]; ok && !e.expired(now) {
		current = e.version
	}
	if current != expected {
		return false, nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	next := memoryEntry{value: stored, version: s.version.Add(1)}
	if ttl > 0 {
		next.expiresAt = now.Add(ttl)
	}
	sh.entries[key] = next

	return true, nil
}

// Delete removes key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
	return nil
}

// Sweep drops every expired entry and returns how many were removed.
// Shards are locked one at a time.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		now := s.clock.Now()
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.expired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet swept
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
