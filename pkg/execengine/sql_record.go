package execengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/storage"
)

// SQLStore persists ExecutionRecords to the shared relational database's
// executions table.
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore constructs a SQLStore over an already-migrated database.
func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

func placeholderList(db *storage.DB, n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += db.Placeholder(i)
	}
	return out
}

func (s *SQLStore) Create(ctx context.Context, rec ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO executions (execution_trn, action_trn, tenant, status, status_code, duration_ms, error_message, output_data_json, created_at, completed_at)
		VALUES (%s)`, placeholderList(s.db, 10)),
		rec.ExecutionTRN, rec.ActionTRN, rec.Tenant, string(rec.Status),
		nullableIntPtr(rec.StatusCode), nullableInt64Ptr(rec.DurationMS), nullableStringPtr(rec.ErrorMessage),
		nullableJSON(rec.OutputData), rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "inserting execution record")
	}
	return nil
}

func (s *SQLStore) Complete(ctx context.Context, executionTRN string, status Status, statusCode *int, durationMS int64, errMsg *string, output map[string]any) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE executions SET status = %s, status_code = %s, duration_ms = %s, error_message = %s, output_data_json = %s, completed_at = %s
		WHERE execution_trn = %s`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4), s.db.Placeholder(5), s.db.Placeholder(6), s.db.Placeholder(7)),
		string(status), nullableIntPtr(statusCode), durationMS, nullableStringPtr(errMsg), nullableJSON(output), time.Now().UTC(), executionTRN)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "completing execution record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.KindNotFound, "execution record not found").WithData(map[string]any{"execution_trn": executionTRN})
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, executionTRN string) (ExecutionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT execution_trn, action_trn, tenant, status, status_code, duration_ms, error_message, output_data_json, created_at, completed_at
		FROM executions WHERE execution_trn = %s`, s.db.Placeholder(1)), executionTRN)
	return scanExecutionRow(row)
}

func (s *SQLStore) ListByActionTRN(ctx context.Context, actionTRN string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT execution_trn, action_trn, tenant, status, status_code, duration_ms, error_message, output_data_json, created_at, completed_at
		FROM executions WHERE action_trn = %s ORDER BY created_at DESC LIMIT %s`,
		s.db.Placeholder(1), s.db.Placeholder(2)), actionTRN, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing execution records")
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		rec, ok, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanExecutionRow(row scannable) (ExecutionRecord, bool, error) {
	var (
		executionTRN, actionTRN, tenant, status string
		statusCode, durationMS                  sql.NullInt64
		errorMessage, outputJSON                sql.NullString
		createdAt                               time.Time
		completedAt                             sql.NullTime
	)
	err := row.Scan(&executionTRN, &actionTRN, &tenant, &status, &statusCode, &durationMS, &errorMessage, &outputJSON, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ExecutionRecord{}, false, nil
	}
	if err != nil {
		return ExecutionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "scanning executions row")
	}

	rec := ExecutionRecord{
		ExecutionTRN: executionTRN,
		ActionTRN:    actionTRN,
		Tenant:       tenant,
		Status:       Status(status),
		CreatedAt:    createdAt,
	}
	if statusCode.Valid {
		rec.StatusCode = intPtr(int(statusCode.Int64))
	}
	if durationMS.Valid {
		rec.DurationMS = int64Ptr(durationMS.Int64)
	}
	if errorMessage.Valid {
		rec.ErrorMessage = stringPtr(errorMessage.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if outputJSON.Valid && outputJSON.String != "" {
		var out map[string]any
		if err := json.Unmarshal([]byte(outputJSON.String), &out); err != nil {
			return ExecutionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding output_data_json")
		}
		rec.OutputData = out
	}
	return rec, true, nil
}

func nullableIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullableJSON(m map[string]any) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func int64Ptr(v int64) *int64 { return &v }

var _ Store = (*SQLStore)(nil)
