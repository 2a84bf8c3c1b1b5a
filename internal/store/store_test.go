package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behaviour every KeyedStore must share.
// advance moves the backend's notion of time forward.
func runStoreContract(t *testing.T, newStore func(t *testing.T) (store.KeyedStore, func(time.Duration))) {
	ctx := context.Background()

	t.Run("absent key has zero version", func(t *testing.T) {
		s, _ := newStore(t)

		entry, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, entry.Found())
		assert.Equal(t, uint64(0), entry.Version)
		assert.Nil(t, entry.Value)
	})

	t.Run("create then read", func(t *testing.T) {
		s, _ := newStore(t)

		ok, err := s.CompareAndSwap(ctx, "k", 0, []byte("v1"), 0)
		require.NoError(t, err)
		assert.True(t, ok)

		entry, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, entry.Found())
		assert.Equal(t, []byte("v1"), entry.Value)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		s, _ := newStore(t)

		ok, err := s.CompareAndSwap(ctx, "k", 0, []byte("v1"), 0)
		require.NoError(t, err)
		require.True(t, ok)

		first, err := s.Get(ctx, "k")
		require.NoError(t, err)

		ok, err = s.CompareAndSwap(ctx, "k", first.Version, []byte("v2"), 0)
		require.NoError(t, err)
		assert.True(t, ok)

		// A second writer still holding the first version loses
		ok, err = s.CompareAndSwap(ctx, "k", first.Version, []byte("v3"), 0)
		require.NoError(t, err)
		assert.False(t, ok)

		// Creating over an existing key loses too
		ok, err = s.CompareAndSwap(ctx, "k", 0, []byte("v4"), 0)
		require.NoError(t, err)
		assert.False(t, ok)

		entry, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), entry.Value)
	})

	t.Run("delete clears the key", func(t *testing.T) {
		s, _ := newStore(t)

		_, err := s.CompareAndSwap(ctx, "k", 0, []byte("v1"), 0)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))

		entry, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, entry.Found())
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		s, advance := newStore(t)

		ok, err := s.CompareAndSwap(ctx, "k", 0, []byte("v1"), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		advance(30 * time.Second)
		entry, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, entry.Found())

		advance(31 * time.Second)
		entry, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, entry.Found())

		ok, err = s.CompareAndSwap(ctx, "k", 0, []byte("v2"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent increments never lose an update", func(t *testing.T) {
		s, _ := newStore(t)

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					entry, err := s.Get(ctx, "counter")
					if err != nil {
						t.Error(err)
						return
					}
					next := append([]byte{}, entry.Value...)
					next = append(next, 'x')
					ok, err := s.CompareAndSwap(ctx, "counter", entry.Version, next, 0)
					if err != nil {
						t.Error(err)
						return
					}
					if ok {
						return
					}
				}
			}()
		}
		wg.Wait()

		entry, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Len(t, entry.Value, workers)
	})
}
