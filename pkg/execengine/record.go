package execengine

import (
	"context"
	"time"
)

// Status is an ExecutionRecord's lifecycle state (spec.md §4.9.5).
type Status string

// Recognized statuses. A record transitions Running -> {Completed,
// Failed, Cancelled} exactly once.
const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// ExecutionRecord is one invocation of run_action_by_trn_with_input.
type ExecutionRecord struct {
	ExecutionTRN string
	ActionTRN    string
	Tenant       string
	Status       Status
	StatusCode   *int
	DurationMS   *int64
	ErrorMessage *string
	OutputData   map[string]any
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Store is the persistence abstraction for ExecutionRecords.
type Store interface {
	// Create writes a new record, normally in StatusRunning.
	Create(ctx context.Context, rec ExecutionRecord) error
	// Complete transitions an existing record to a terminal status.
	Complete(ctx context.Context, executionTRN string, status Status, statusCode *int, durationMS int64, errMsg *string, output map[string]any) error
	// Get returns the record for executionTRN, or (zero, false, nil).
	Get(ctx context.Context, executionTRN string) (ExecutionRecord, bool, error)
	// ListByActionTRN enumerates records for one action, most recent first.
	ListByActionTRN(ctx context.Context, actionTRN string, limit int) ([]ExecutionRecord, error)
}

func intPtr(v int) *int          { return &v }
func stringPtr(v string) *string { return &v }
