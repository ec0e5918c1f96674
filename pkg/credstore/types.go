// Package credstore implements the Credential Store (C3): CRUD plus atomic
// compare-and-swap over encrypted AuthConnection records, with TTL sweep
// and an append-only audit history.
package credstore

import (
	"time"
)

// Ref identifies an AuthConnection by its natural key.
type Ref struct {
	Tenant   string
	Provider string
	UserID   string
}

// ConnectionKey returns the stable string form of the ref, used as the
// credential cache key and single-flight coalescing key.
func (r Ref) ConnectionKey() string {
	return r.Tenant + "/" + r.Provider + "/" + r.UserID
}

// AuthConnection is a materialized credential instance (spec.md §3).
type AuthConnection struct {
	TRN          string
	Tenant       string
	Provider     string
	UserID       string
	AccessToken  string
	RefreshToken string // empty when absent
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time // nil means "never expires"
	Extra        map[string]any
	KeyVersion   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

// Ref reconstructs the natural-key reference for this connection.
func (a AuthConnection) Ref() Ref {
	return Ref{Tenant: a.Tenant, Provider: a.Provider, UserID: a.UserID}
}

// defaultExpiringSoonBuffer is the default buffer used by IsExpiringSoon.
const defaultExpiringSoonBuffer = 5 * time.Minute

// IsExpired reports whether the connection's token is expired as of now.
// A connection with no ExpiresAt never expires.
func (a AuthConnection) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// IsExpiringSoon reports whether the token will expire within buffer of
// now. A zero buffer defaults to 5 minutes, matching the refresh policy in
// spec.md §4.5.
func (a AuthConnection) IsExpiringSoon(now time.Time, buffer time.Duration) bool {
	if a.ExpiresAt == nil {
		return false
	}
	if buffer == 0 {
		buffer = defaultExpiringSoonBuffer
	}
	return now.Add(buffer).After(*a.ExpiresAt)
}

// Equal reports whether two AuthConnection values are field-by-field
// identical on their decrypted view, the comparison CAS relies on. Times
// are compared with time.Time.Equal so differing monotonic readings of the
// same instant still match.
func (a AuthConnection) Equal(b AuthConnection) bool {
	if a.TRN != b.TRN || a.Tenant != b.Tenant || a.Provider != b.Provider || a.UserID != b.UserID ||
		a.AccessToken != b.AccessToken || a.RefreshToken != b.RefreshToken ||
		a.TokenType != b.TokenType || a.Scope != b.Scope || a.KeyVersion != b.KeyVersion ||
		a.Version != b.Version {
		return false
	}
	if (a.ExpiresAt == nil) != (b.ExpiresAt == nil) {
		return false
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt) {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	return mapsEqual(a.Extra, b.Extra)
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !valuesEqual(v, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		return mapsEqual(am, bm)
	}
	return a == b
}

// AuditOperation names a credential-store mutation recorded in history.
type AuditOperation string

// Recognized audit operations.
const (
	AuditPut    AuditOperation = "PUT"
	AuditCAS    AuditOperation = "CAS"
	AuditDelete AuditOperation = "DELETE"
)
