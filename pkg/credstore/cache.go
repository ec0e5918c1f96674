package credstore

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingStore wraps a backing Store with an in-memory, time-boxed read
// overlay (spec.md §4.3 TTL). Eviction only affects what CachingStore
// itself serves from memory; it never mutates the backing persistence
// record, and writes always go straight through.
type CachingStore struct {
	backing Store
	cache   *lru.LRU[string, AuthConnection]
}

// NewCachingStore wraps backing with a TTL overlay of the given size and
// per-entry time-to-live.
func NewCachingStore(backing Store, size int, ttl time.Duration) *CachingStore {
	return &CachingStore{
		backing: backing,
		cache:   lru.NewLRU[string, AuthConnection](size, nil, ttl),
	}
}

func (c *CachingStore) Get(ctx context.Context, ref Ref) (AuthConnection, bool, error) {
	if v, ok := c.cache.Get(ref.ConnectionKey()); ok {
		return v, true, nil
	}
	v, ok, err := c.backing.Get(ctx, ref)
	if err == nil && ok {
		c.cache.Add(ref.ConnectionKey(), v)
	}
	return v, ok, err
}

func (c *CachingStore) GetFresh(ctx context.Context, ref Ref, now time.Time) (AuthConnection, bool, error) {
	v, ok, err := c.Get(ctx, ref)
	if err != nil || !ok || v.IsExpired(now) {
		return AuthConnection{}, false, err
	}
	return v, true, nil
}

func (c *CachingStore) Put(ctx context.Context, conn AuthConnection) (AuthConnection, error) {
	stored, err := c.backing.Put(ctx, conn)
	if err == nil {
		c.cache.Add(stored.Ref().ConnectionKey(), stored)
	}
	return stored, err
}

func (c *CachingStore) Delete(ctx context.Context, ref Ref) (bool, error) {
	removed, err := c.backing.Delete(ctx, ref)
	c.cache.Remove(ref.ConnectionKey())
	return removed, err
}

func (c *CachingStore) CompareAndSwap(ctx context.Context, ref Ref, expected, newVal *AuthConnection) (bool, AuthConnection, error) {
	ok, stored, err := c.backing.CompareAndSwap(ctx, ref, expected, newVal)
	if err == nil && ok {
		if newVal == nil {
			c.cache.Remove(ref.ConnectionKey())
		} else {
			c.cache.Add(ref.ConnectionKey(), stored)
		}
	}
	return ok, stored, err
}

func (c *CachingStore) ListRefs(ctx context.Context) ([]string, error) { return c.backing.ListRefs(ctx) }

func (c *CachingStore) CleanupExpired(ctx context.Context) (int, error) {
	n, err := c.backing.CleanupExpired(ctx)
	if err == nil && n > 0 {
		c.cache.Purge()
	}
	return n, err
}

func (c *CachingStore) Count(ctx context.Context) (int, error) { return c.backing.Count(ctx) }

// Invalidate drops ref from the overlay without touching the backing
// store, used by the execution engine's single 401-invalidate-retry.
func (c *CachingStore) Invalidate(ref Ref) {
	c.cache.Remove(ref.ConnectionKey())
}

var _ Store = (*CachingStore)(nil)
