package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, index *KeyIndex) *MemoryCache {
	t.Helper()
	c, err := NewMemoryCache(MemoryOptions{MaxEntries: 1000, Index: index})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, nil)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "tasks:item:1", "value", time.Hour))
	got, ok, err := c.Get(ctx, "tasks:item:1")
	require.NoError(t, err)
	require.True(t, ok, "Set must be visible as soon as it returns")
	assert.Equal(t, "value", got)
}

func TestMemoryCacheRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	index := NewKeyIndex()
	c := newTestCache(t, index)

	require.NoError(t, c.Set(ctx, "k", 1, time.Hour))
	require.NoError(t, c.Remove(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, index.Contains("k"))

	assert.NoError(t, c.Remove(ctx, "never-set"))
}

func TestMemoryCacheRemoveByPrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	index := NewKeyIndex()
	c := newTestCache(t, index)

	require.NoError(t, c.Set(ctx, "tasks:search:a", 1, time.Hour))
	require.NoError(t, c.Set(ctx, "tasks:search:b", 2, time.Hour))
	require.NoError(t, c.Set(ctx, "tasks:item:x", 3, time.Hour))

	require.NoError(t, c.RemoveByPrefix(ctx, "tasks:search:"))

	for _, key := range []string{"tasks:search:a", "tasks:search:b"} {
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	got, ok, err := c.Get(ctx, "tasks:item:x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got)

	assert.Equal(t, []string{"tasks:item:x"}, index.WithPrefix("tasks:"))
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, nil)

	require.NoError(t, c.Set(ctx, "short", "v", 50*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, "short")
		return err == nil && !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMemoryCacheClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := NewMemoryCache(MemoryOptions{MaxEntries: 10})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	_, _, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, time.Minute), ErrUnavailable)
	assert.ErrorIs(t, c.Remove(ctx, "k"), ErrUnavailable)
	assert.ErrorIs(t, c.RemoveByPrefix(ctx, "k"), ErrUnavailable)
}

func TestMemoryCacheCancelledContext(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMemoryCacheRejectsNonPositiveSize(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryCache(MemoryOptions{MaxEntries: 0})
	assert.Error(t, err)
}

func TestMemoryCacheConcurrentUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("tasks:search:%d", i)
			assert.NoError(t, c.Set(ctx, key, i, time.Hour))
			_, _, err := c.Get(ctx, key)
			assert.NoError(t, err)
			assert.NoError(t, c.RemoveByPrefix(ctx, "tasks:search:"))
		}(i)
	}
	wg.Wait()

	require.NoError(t, c.RemoveByPrefix(ctx, "tasks:search:"))
	assert.Equal(t, 0, c.index.Len())
}

func TestMemoryCacheSetRacingRemoveByPrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, nil)

	const writers, rounds = 8, 50
	var (
		wg   sync.WaitGroup
		done = make(chan struct{})
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				assert.NoError(t, c.RemoveByPrefix(ctx, "tasks:search:"))
			}
		}
	}()

	var writersWG sync.WaitGroup
	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(w int) {
			defer writersWG.Done()
			for r := 0; r < rounds; r++ {
				// Rejected writes are allowed; they leave nothing behind.
				_ = c.Set(ctx, fmt.Sprintf("tasks:search:%d-%d", w, r), r, time.Hour)
			}
		}(w)
	}
	writersWG.Wait()
	close(done)
	wg.Wait()

	require.NoError(t, c.RemoveByPrefix(ctx, "tasks:search:"))
	for w := 0; w < writers; w++ {
		for r := 0; r < rounds; r++ {
			key := fmt.Sprintf("tasks:search:%d-%d", w, r)
			_, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, "%s survived the final invalidation", key)
		}
	}
	assert.Equal(t, 0, c.index.Len())
}
