package credstore

import (
	"context"
	"sync"
	"time"
)

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	TRN       string
	Operation AuditOperation
	Old       *AuthConnection
	New       *AuthConnection
	CreatedAt time.Time
}

// MemoryStore is an in-process Store, suitable for tests and single-process
// local development. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]AuthConnection // keyed by ConnectionKey()
	audit []AuditEntry
	clock func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore using the real wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]AuthConnection), clock: time.Now}
}

// NewMemoryStoreWithClock is like NewMemoryStore but lets tests inject a
// deterministic clock.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	return &MemoryStore{rows: make(map[string]AuthConnection), clock: clock}
}

func (m *MemoryStore) Get(_ context.Context, ref Ref) (AuthConnection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[ref.ConnectionKey()]
	return row, ok, nil
}

func (m *MemoryStore) GetFresh(_ context.Context, ref Ref, now time.Time) (AuthConnection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[ref.ConnectionKey()]
	if !ok || row.IsExpired(now) {
		return AuthConnection{}, false, nil
	}
	return row, true, nil
}

func (m *MemoryStore) Put(_ context.Context, conn AuthConnection) (AuthConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(conn)
}

func (m *MemoryStore) putLocked(conn AuthConnection) (AuthConnection, error) {
	key := conn.Ref().ConnectionKey()
	now := m.clock()
	existing, existed := m.rows[key]

	var old *AuthConnection
	if existed {
		c := existing
		old = &c
		conn.CreatedAt = existing.CreatedAt
		conn.Version = existing.Version + 1
	} else {
		conn.CreatedAt = now
		conn.Version = 1
	}
	conn.UpdatedAt = now
	m.rows[key] = conn

	newCopy := conn
	m.audit = append(m.audit, AuditEntry{TRN: conn.TRN, Operation: AuditPut, Old: old, New: &newCopy, CreatedAt: now})
	return conn, nil
}

func (m *MemoryStore) Delete(_ context.Context, ref Ref) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ref.ConnectionKey()
	existing, ok := m.rows[key]
	if !ok {
		return false, nil
	}
	delete(m.rows, key)
	old := existing
	m.audit = append(m.audit, AuditEntry{TRN: existing.TRN, Operation: AuditDelete, Old: &old, New: nil, CreatedAt: m.clock()})
	return true, nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, ref Ref, expected, newVal *AuthConnection) (bool, AuthConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ref.ConnectionKey()
	current, exists := m.rows[key]

	switch {
	case expected == nil && exists:
		return false, AuthConnection{}, nil
	case expected != nil && !exists:
		return false, AuthConnection{}, nil
	case expected != nil && exists && !current.Equal(*expected):
		return false, AuthConnection{}, nil
	}

	now := m.clock()
	if newVal == nil {
		if !exists {
			// (None, None): no-op, succeeds, empty slot stays empty.
			return true, AuthConnection{}, nil
		}
		delete(m.rows, key)
		old := current
		m.audit = append(m.audit, AuditEntry{TRN: current.TRN, Operation: AuditCAS, Old: &old, New: nil, CreatedAt: now})
		return true, AuthConnection{}, nil
	}

	stored, err := m.putLocked(*newVal)
	if err != nil {
		return false, AuthConnection{}, err
	}
	// putLocked already appended a PUT audit entry; relabel the most
	// recent entry as a CAS for traceability.
	if len(m.audit) > 0 {
		m.audit[len(m.audit)-1].Operation = AuditCAS
	}
	return true, stored, nil
}

func (m *MemoryStore) ListRefs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]string, 0, len(m.rows))
	for k := range m.rows {
		refs = append(refs, k)
	}
	return refs, nil
}

func (m *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	removed := 0
	for key, row := range m.rows {
		if row.IsExpired(now) {
			delete(m.rows, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

// Audit returns a snapshot of the audit log, oldest first, for tests to
// inspect.
func (m *MemoryStore) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}
