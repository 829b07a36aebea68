package authz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryCacheGetOrCompute(t *testing.T) {
	c := NewMemoryPermissionCache()
	key := CacheKey{UserID: "u1", Permission: PermissionRead, Resource: ResourceTypeProject}

	var calls int32
	compute := func(context.Context) (IDSet, error) {
		atomic.AddInt32(&calls, 1)
		return NewIDSet("p1", "p2"), nil
	}

	ctx := context.Background()
	first, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	assertIDs(t, first, "p1", "p2")

	second, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	assertIDs(t, second, "p1", "p2")
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 compute call, got %d", calls)
	}

	// Mutating a returned set must not poison the cache.
	second.Add("p999")
	third, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third.Contains("p999") {
		t.Fatal("cached set was mutated through a returned copy")
	}
}

func TestMemoryCacheComputeErrorNotCached(t *testing.T) {
	c := NewMemoryPermissionCache()
	key := CacheKey{UserID: "u1", Permission: PermissionRead, Resource: ResourceTypeProject}

	ctx := context.Background()
	_, err := c.GetOrCompute(ctx, key, func(context.Context) (IDSet, error) {
		return nil, fmt.Errorf("store down")
	})
	if err == nil {
		t.Fatal("expected compute error")
	}
	if c.Len() != 0 {
		t.Fatalf("error result must not be cached, have %d entries", c.Len())
	}

	got, err := c.GetOrCompute(ctx, key, func(context.Context) (IDSet, error) {
		return NewIDSet("p1"), nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	assertIDs(t, got, "p1")
}

func TestMemoryCacheInvalidateUser(t *testing.T) {
	c := NewMemoryPermissionCache()
	ctx := context.Background()

	keys := []CacheKey{
		{UserID: "u1", Permission: PermissionRead, Resource: ResourceTypeProject},
		{UserID: "u1", Permission: PermissionWrite, Resource: ResourceTypeCustomer},
		{UserID: "u2", Permission: PermissionRead, Resource: ResourceTypeProject},
	}
	for _, key := range keys {
		if _, err := c.GetOrCompute(ctx, key, func(context.Context) (IDSet, error) {
			return NewIDSet("x"), nil
		}); err != nil {
			t.Fatalf("seed %v: %v", key, err)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	c.InvalidateUser("u1")
	if c.Len() != 1 {
		t.Fatalf("expected only u2's entry to survive, got %d", c.Len())
	}

	var recomputed bool
	if _, err := c.GetOrCompute(ctx, keys[0], func(context.Context) (IDSet, error) {
		recomputed = true
		return NewIDSet("y"), nil
	}); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !recomputed {
		t.Fatal("expected recompute after invalidation")
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryPermissionCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", n%4)
			key := CacheKey{UserID: userID, Permission: PermissionRead, Resource: ResourceTypeProject}
			for j := 0; j < 100; j++ {
				if _, err := c.GetOrCompute(ctx, key, func(context.Context) (IDSet, error) {
					return NewIDSet("p1"), nil
				}); err != nil {
					t.Errorf("get: %v", err)
					return
				}
				if j%10 == 0 {
					c.InvalidateUser(userID)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRistrettoCache(t *testing.T) {
	c, err := NewRistrettoPermissionCache(RistrettoCacheConfig{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := CacheKey{UserID: "u1", Permission: PermissionRead, Resource: ResourceTypeProject}

	var calls int32
	compute := func(context.Context) (IDSet, error) {
		atomic.AddInt32(&calls, 1)
		return NewIDSet("p1", "p2"), nil
	}
	first, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	assertIDs(t, first, "p1", "p2")

	second, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	assertIDs(t, second, "p1", "p2")
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 compute call, got %d", calls)
	}

	c.InvalidateUser("u1")
	if _, err := c.GetOrCompute(ctx, key, compute); err != nil {
		t.Fatalf("after invalidate: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected recompute after invalidation, calls=%d", calls)
	}
}

func TestCacheKeyString(t *testing.T) {
	key := CacheKey{UserID: "u1", Permission: PermissionWrite, Resource: ResourceTypeProject}
	if key.String() != "u1|write|project" {
		t.Fatalf("unexpected key string %q", key.String())
	}
}
