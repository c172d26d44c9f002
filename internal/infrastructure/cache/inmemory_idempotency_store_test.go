package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(time.Hour)
	store.now = clock.Now
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_Remember(t *testing.T) {
	ctx := context.Background()
	key := shared.WebhookReferenceKey("gw-1")

	t.Run("first delivery wins", func(t *testing.T) {
		store, _ := newTestStore(t)

		ok, err := store.Remember(ctx, key, "payment-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Remember(ctx, key, "payment-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		value, found, err := store.Lookup(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "payment-1", value)
	})

	t.Run("expired key can be reused", func(t *testing.T) {
		store, clock := newTestStore(t)

		_, err := store.Remember(ctx, key, "payment-1", time.Minute)
		require.NoError(t, err)
		clock.Advance(time.Minute)

		_, found, err := store.Lookup(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)

		ok, err := store.Remember(ctx, key, "payment-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("forget releases the key", func(t *testing.T) {
		store, _ := newTestStore(t)

		_, err := store.Remember(ctx, key, "pending", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Forget(ctx, key))

		ok, err := store.Remember(ctx, key, "payment-3", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestInMemoryIdempotencyStore_ConcurrentRemember(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Remember(ctx, "webhook:payment:gw-race", "x", time.Hour)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, _ = store.Remember(ctx, "a", "1", time.Minute)
	_, _ = store.Remember(ctx, "b", "2", time.Hour)
	clock.Advance(2 * time.Minute)

	store.sweep()
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore(0)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestIdempotencyStoreFactory(t *testing.T) {
	t.Run("memory driver", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(config.IdempotencyConfig{Driver: "memory"}, config.RedisConfig{})
		store, err := f.CreateStore(context.Background())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(
			config.IdempotencyConfig{Driver: "redis"},
			config.RedisConfig{Host: "127.0.0.1", Port: 1},
		)
		store, err := f.CreateStore(context.Background())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("unreachable redis without fallback fails", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(
			config.IdempotencyConfig{Driver: "redis"},
			config.RedisConfig{Host: "127.0.0.1", Port: 1},
			WithInMemoryFallback(false),
		)
		_, err := f.CreateStore(context.Background())
		assert.Error(t, err)
	})
}
