package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryOptions configures a MemoryCache.
type MemoryOptions struct {
	// MaxEntries bounds the number of cached values.
	MaxEntries int64
	// Index tracks written keys for prefix removal. A fresh index is
	// created when nil.
	Index *KeyIndex
}

// MemoryCache is an in-process Cache backed by ristretto.
type MemoryCache struct {
	store *ristretto.Cache[string, any]
	index *KeyIndex

	// mu is held shared by Set and exclusively by removals, so a removal
	// never observes a value that is stored but not yet indexed.
	mu     sync.RWMutex
	closed atomic.Bool
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(opts MemoryOptions) (*MemoryCache, error) {
	if opts.MaxEntries <= 0 {
		return nil, fmt.Errorf("cache max entries must be positive, got %d", opts.MaxEntries)
	}
	if opts.Index == nil {
		opts.Index = NewKeyIndex()
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &MemoryCache{store: store, index: opts.Index}, nil
}

// Set stores value under key and waits until it is readable.
func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.store.SetWithTTL(key, value, 1, ttl) {
		return fmt.Errorf("cache rejected key %q", key)
	}
	c.store.Wait()
	c.index.Add(key)
	return nil
}

// Get returns the cached value for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (any, bool, error) {
	if err := c.check(ctx); err != nil {
		return nil, false, err
	}
	value, ok := c.store.Get(key)
	return value, ok, nil
}

// Remove deletes key.
func (c *MemoryCache) Remove(ctx context.Context, key string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Del(key)
	c.index.Remove(key)
	return nil
}

// RemoveByPrefix deletes every indexed key starting with prefix.
func (c *MemoryCache) RemoveByPrefix(ctx context.Context, prefix string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.index.WithPrefix(prefix) {
		c.store.Del(key)
		c.index.Remove(key)
	}
	return nil
}

// Close releases the cache. Every later call returns ErrUnavailable.
func (c *MemoryCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.store.Close()
	}
	return nil
}

func (c *MemoryCache) check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrUnavailable
	}
	return ctx.Err()
}
