package binding

import (
	"context"
	"fmt"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/storage"
)

// SQLStore persists Binding rows to the bindings table.
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore constructs a Store over an already-migrated database.
func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Bind(ctx context.Context, b Binding) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO bindings (tenant, auth_trn, action_trn, created_by, created_at)
		VALUES (%s)
		ON CONFLICT (tenant, auth_trn, action_trn) DO NOTHING`, placeholderList(s.db, 5)),
		b.Tenant, b.AuthTRN, b.ActionTRN, nullableString(b.CreatedBy), b.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "inserting binding")
	}
	return nil
}

func (s *SQLStore) Unbind(ctx context.Context, tenant, authTRN, actionTRN string) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM bindings WHERE tenant = %s AND auth_trn = %s AND action_trn = %s`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3)),
		tenant, authTRN, actionTRN)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, err, "deleting binding")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) ListByTenant(ctx context.Context, tenant string, authTRN, actionTRN *string) ([]Binding, error) {
	query := `SELECT tenant, auth_trn, action_trn, created_by, created_at FROM bindings WHERE tenant = ` + s.db.Placeholder(1)
	args := []any{tenant}
	n := 2
	if authTRN != nil {
		query += fmt.Sprintf(" AND auth_trn = %s", s.db.Placeholder(n))
		args = append(args, *authTRN)
		n++
	}
	if actionTRN != nil {
		query += fmt.Sprintf(" AND action_trn = %s", s.db.Placeholder(n))
		args = append(args, *actionTRN)
		n++
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing bindings")
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		var createdBy *string
		if err := rows.Scan(&b.Tenant, &b.AuthTRN, &b.ActionTRN, &createdBy, &b.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "scanning binding row")
		}
		if createdBy != nil {
			b.CreatedBy = *createdBy
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
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

var _ Store = (*SQLStore)(nil)
