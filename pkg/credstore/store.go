package credstore

import (
	"context"
	"time"
)

// Store is the capability interface the Auth Orchestrator (C5) depends on.
// Concrete implementations (in-memory for tests/local dev, SQL-backed for
// production) are plugged in at construction — no component upstream of
// Store cares which one it got.
type Store interface {
	// Get returns the connection for ref, or (zero, false, nil) if absent.
	Get(ctx context.Context, ref Ref) (AuthConnection, bool, error)
	// GetFresh returns the connection only if it is not expired as of now.
	GetFresh(ctx context.Context, ref Ref, now time.Time) (AuthConnection, bool, error)
	// Put creates or updates conn, incrementing its version, and returns
	// the stored value (with Version/UpdatedAt populated).
	Put(ctx context.Context, conn AuthConnection) (AuthConnection, error)
	// Delete removes ref's connection, if any. Returns true if a row was
	// removed.
	Delete(ctx context.Context, ref Ref) (bool, error)
	// CompareAndSwap atomically replaces the row at ref iff its current
	// decrypted value structurally equals expected (or both are absent
	// for an insert/no-op). Returns whether the swap succeeded and the
	// resulting stored value (zero value on delete-via-CAS).
	CompareAndSwap(ctx context.Context, ref Ref, expected, newVal *AuthConnection) (bool, AuthConnection, error)
	// ListRefs enumerates every stored connection's natural-key string.
	ListRefs(ctx context.Context) ([]string, error)
	// CleanupExpired removes every row whose ExpiresAt is in the past and
	// returns the number removed.
	CleanupExpired(ctx context.Context) (int, error)
	// Count returns the number of stored connections.
	Count(ctx context.Context) (int, error)
}
