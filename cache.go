package authz

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// CacheKey identifies one memoized permission computation.
type CacheKey struct {
	UserID     string
	Permission PermissionType
	Resource   ResourceType
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.UserID, k.Permission, k.Resource)
}

// PermissionCache memoizes permitted-id sets per (user, permission, resource
// type). Entries carry no TTL; correctness depends on explicit invalidation on
// every write that could change a result. The cache must tolerate concurrent
// readers and concurrent invalidation.
type PermissionCache interface {
	// GetOrCompute returns the cached set for key, computing and storing it on
	// a miss. Returned sets are private copies; callers may mutate them.
	GetOrCompute(ctx context.Context, key CacheKey, compute func(context.Context) (IDSet, error)) (IDSet, error)

	// Invalidate evicts a single entry.
	Invalidate(key CacheKey)

	// InvalidateUser evicts every entry belonging to userID.
	InvalidateUser(userID string)
}

// MemoryPermissionCache is a mutex-guarded map cache. It is the default cache
// and the one to use in tests.
type MemoryPermissionCache struct {
	mu      sync.RWMutex
	entries map[CacheKey]IDSet
	byUser  map[string]map[CacheKey]struct{}
}

func NewMemoryPermissionCache() *MemoryPermissionCache {
	return &MemoryPermissionCache{
		entries: make(map[CacheKey]IDSet),
		byUser:  make(map[string]map[CacheKey]struct{}),
	}
}

func (c *MemoryPermissionCache) GetOrCompute(ctx context.Context, key CacheKey, compute func(context.Context) (IDSet, error)) (IDSet, error) {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	// Compute outside the lock; a concurrent duplicate computation is harmless
	// since permission lookups are idempotent reads.
	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = result.Clone()
	keys, ok := c.byUser[key.UserID]
	if !ok {
		keys = make(map[CacheKey]struct{})
		c.byUser[key.UserID] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
	return result, nil
}

func (c *MemoryPermissionCache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	if keys, ok := c.byUser[key.UserID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byUser, key.UserID)
		}
	}
}

func (c *MemoryPermissionCache) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byUser[userID] {
		delete(c.entries, key)
	}
	delete(c.byUser, userID)
}

// Len reports the number of live entries, for tests.
func (c *MemoryPermissionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RistrettoPermissionCache is a production cache backed by ristretto.
// Ristretto cannot enumerate its keys, so a side index tracks each user's live
// keys to support per-user eviction.
type RistrettoPermissionCache struct {
	cache *ristretto.Cache

	mu     sync.Mutex
	byUser map[string]map[CacheKey]struct{}
}

// RistrettoCacheConfig carries the ristretto sizing knobs.
type RistrettoCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func NewRistrettoPermissionCache(cfg RistrettoCacheConfig) (*RistrettoPermissionCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e6
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 26
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &RistrettoPermissionCache{
		cache:  cache,
		byUser: make(map[string]map[CacheKey]struct{}),
	}, nil
}

func (c *RistrettoPermissionCache) GetOrCompute(ctx context.Context, key CacheKey, compute func(context.Context) (IDSet, error)) (IDSet, error) {
	if v, ok := c.cache.Get(key.String()); ok {
		if set, ok := v.(IDSet); ok {
			return set.Clone(), nil
		}
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	// Cost is proportional to the set size so large tenants do not crowd out
	// everything else.
	c.cache.Set(key.String(), result.Clone(), int64(result.Len())+1)
	c.cache.Wait()

	c.mu.Lock()
	keys, ok := c.byUser[key.UserID]
	if !ok {
		keys = make(map[CacheKey]struct{})
		c.byUser[key.UserID] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
	return result, nil
}

func (c *RistrettoPermissionCache) Invalidate(key CacheKey) {
	c.cache.Del(key.String())
	c.mu.Lock()
	defer c.mu.Unlock()
	if keys, ok := c.byUser[key.UserID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byUser, key.UserID)
		}
	}
}

func (c *RistrettoPermissionCache) InvalidateUser(userID string) {
	c.mu.Lock()
	keys := c.byUser[userID]
	delete(c.byUser, userID)
	c.mu.Unlock()
	for key := range keys {
		c.cache.Del(key.String())
	}
}

func (c *RistrettoPermissionCache) Close() {
	c.cache.Close()
}
