package execengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

// MemoryStore is an in-process Store for tests and local dev.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]ExecutionRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]ExecutionRecord)}
}

func (m *MemoryStore) Create(_ context.Context, rec ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec.ExecutionTRN] = rec
	return nil
}

func (m *MemoryStore) Complete(_ context.Context, executionTRN string, status Status, statusCode *int, durationMS int64, errMsg *string, output map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[executionTRN]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "execution record not found").WithData(map[string]any{"execution_trn": executionTRN})
	}
	rec.Status = status
	rec.StatusCode = statusCode
	rec.DurationMS = int64Ptr(durationMS)
	rec.ErrorMessage = errMsg
	rec.OutputData = output
	now := time.Now().UTC()
	rec.CompletedAt = &now
	m.rows[executionTRN] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, executionTRN string) (ExecutionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[executionTRN]
	return rec, ok, nil
}

func (m *MemoryStore) ListByActionTRN(_ context.Context, actionTRN string, limit int) ([]ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecutionRecord
	for _, rec := range m.rows {
		if rec.ActionTRN == actionTRN {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
