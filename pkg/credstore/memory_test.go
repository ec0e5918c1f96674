package credstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionixone/openact-sub001/pkg/credstore"
)

func ref() credstore.Ref {
	return credstore.Ref{Tenant: "acme", Provider: "github", UserID: "u1"}
}

func TestPutIncrementsVersionAndTimestamps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := credstore.NewMemoryStore()

	first, err := store.Put(ctx, credstore.AuthConnection{Tenant: "acme", Provider: "github", UserID: "u1", AccessToken: "tok1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.True(t, first.UpdatedAt.Equal(first.CreatedAt))

	second, err := store.Put(ctx, credstore.AuthConnection{Tenant: "acme", Provider: "github", UserID: "u1", AccessToken: "tok2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt), "created_at must not change on update")
	assert.True(t, !second.UpdatedAt.Before(first.UpdatedAt))
}

func TestCASSemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := credstore.NewMemoryStore()
	r := ref()

	// (None, None) on empty slot succeeds as a no-op.
	ok, _, err := store.CompareAndSwap(ctx, r, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// (None, Some) inserts.
	ok, stored, err := store.CompareAndSwap(ctx, r, nil, &credstore.AuthConnection{
		Tenant: r.Tenant, Provider: r.Provider, UserID: r.UserID, AccessToken: "v1",
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", stored.AccessToken)

	// Mismatched expected fails, leaves store unchanged.
	stale := stored
	stale.AccessToken = "wrong"
	ok, _, err = store.CompareAndSwap(ctx, r, &stale, &credstore.AuthConnection{
		Tenant: r.Tenant, Provider: r.Provider, UserID: r.UserID, AccessToken: "v2",
	})
	require.NoError(t, err)
	assert.False(t, ok)

	current, found, _ := store.Get(ctx, r)
	require.True(t, found)
	assert.Equal(t, "v1", current.AccessToken)

	// Matching expected succeeds.
	ok, stored2, err := store.CompareAndSwap(ctx, r, &stored, &credstore.AuthConnection{
		Tenant: r.Tenant, Provider: r.Provider, UserID: r.UserID, AccessToken: "v2",
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", stored2.AccessToken)

	// (Some, None) deletes.
	ok, _, err = store.CompareAndSwap(ctx, r, &stored2, nil)
	require.NoError(t, err)
	require.True(t, ok)
	_, found, _ = store.Get(ctx, r)
	assert.False(t, found)
}

func TestCASLinearizabilityUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := credstore.NewMemoryStore()
	r := ref()

	_, err := store.Put(ctx, credstore.AuthConnection{Tenant: r.Tenant, Provider: r.Provider, UserID: r.UserID, AccessToken: "base"})
	require.NoError(t, err)
	base, _, _ := store.Get(ctx, r)

	const n = 20
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _, err := store.CompareAndSwap(ctx, r, &base, &credstore.AuthConnection{
				Tenant: r.Tenant, Provider: r.Provider, UserID: r.UserID, AccessToken: "winner",
			})
			require.NoError(t, err)
			successes[i] = ok
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one CAS with matching expected must succeed")
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := credstore.NewMemoryStoreWithClock(func() time.Time { return now })

	past := now.Add(-time.Hour)
	_, err := store.Put(ctx, credstore.AuthConnection{Tenant: "acme", Provider: "github", UserID: "expired", AccessToken: "x", ExpiresAt: &past})
	require.NoError(t, err)
	future := now.Add(time.Hour)
	_, err = store.Put(ctx, credstore.AuthConnection{Tenant: "acme", Provider: "github", UserID: "fresh", AccessToken: "y", ExpiresAt: &future})
	require.NoError(t, err)

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, found, _ := store.Get(ctx, credstore.Ref{Tenant: "acme", Provider: "github", UserID: "expired"})
	assert.False(t, found)
	_, found, _ = store.Get(ctx, credstore.Ref{Tenant: "acme", Provider: "github", UserID: "fresh"})
	assert.True(t, found)
}

func TestAuditLogRecordsMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := credstore.NewMemoryStore()
	r := ref()

	_, err := store.Put(ctx, credstore.AuthConnection{Tenant: r.Tenant, Provider: r.Provider, UserID: r.UserID, AccessToken: "a"})
	require.NoError(t, err)
	_, err = store.Delete(ctx, r)
	require.NoError(t, err)

	entries := store.Audit()
	require.Len(t, entries, 2)
	assert.Equal(t, credstore.AuditPut, entries[0].Operation)
	assert.Equal(t, credstore.AuditDelete, entries[1].Operation)
	assert.NotNil(t, entries[1].Old)
	assert.Nil(t, entries[1].New)
}
