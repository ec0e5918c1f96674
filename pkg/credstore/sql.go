package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aionixone/openact-sub001/pkg/apperrors"
	"github.com/aionixone/openact-sub001/pkg/crypto"
	"github.com/aionixone/openact-sub001/pkg/storage"
	"github.com/aionixone/openact-sub001/pkg/trn"
)

// SQLStore persists AuthConnection rows to the shared relational database,
// encrypting access_token/refresh_token/extra at rest via the Encryption
// Service (C2) and appending one row per mutation to
// auth_connection_history (SPEC_FULL.md §C).
type SQLStore struct {
	db  *storage.DB
	enc *crypto.Service
}

// NewSQLStore constructs a SQLStore over an already-migrated database.
func NewSQLStore(db *storage.DB, enc *crypto.Service) *SQLStore {
	return &SQLStore{db: db, enc: enc}
}

func (s *SQLStore) mintTRN(ref Ref) string {
	return trn.New(ref.Tenant, trn.KindAuthConnection, ref.Provider, ref.UserID).Format()
}

func (s *SQLStore) Get(ctx context.Context, ref Ref) (AuthConnection, bool, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, provider, user_id, access_token_enc, access_token_nonce,
		       refresh_token_enc, refresh_token_nonce, expires_at, token_type, scope,
		       extra_enc, extra_nonce, key_version, created_at, updated_at, version
		FROM auth_connections WHERE tenant = %s AND provider = %s AND user_id = %s`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3)),
		ref.Tenant, ref.Provider, ref.UserID)
	return s.scanOne(row)
}

func (s *SQLStore) GetFresh(ctx context.Context, ref Ref, now time.Time) (AuthConnection, bool, error) {
	conn, ok, err := s.Get(ctx, ref)
	if err != nil || !ok || conn.IsExpired(now) {
		return AuthConnection{}, false, err
	}
	return conn, true, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanOne(row scannable) (AuthConnection, bool, error) {
	var (
		trnStr, tenant, provider, userID                 string
		accessEnc, tokenType                              string
		accessNonce, refreshEnc, refreshNonce             sql.NullString
		expiresAt                                         sql.NullTime
		scope, extraEnc, extraNonce                       sql.NullString
		keyVersion                                        int
		createdAt, updatedAt                              time.Time
		version                                           int64
	)
	err := row.Scan(&trnStr, &tenant, &provider, &userID, &accessEnc, &accessNonce,
		&refreshEnc, &refreshNonce, &expiresAt, &tokenType, &scope, &extraEnc, &extraNonce,
		&keyVersion, &createdAt, &updatedAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthConnection{}, false, nil
	}
	if err != nil {
		return AuthConnection{}, false, apperrors.Wrap(apperrors.KindInternal, err, "scanning auth_connections row")
	}

	accessToken, err := s.enc.Decrypt(crypto.Encrypted{
		Ciphertext: []byte(accessEnc), Nonce: decodeNonce(accessNonce), KeyVersion: keyVersion,
	})
	if err != nil {
		return AuthConnection{}, false, err
	}

	var refreshToken string
	if refreshEnc.Valid {
		refreshToken, err = s.enc.Decrypt(crypto.Encrypted{
			Ciphertext: []byte(refreshEnc.String), Nonce: decodeNonce(refreshNonce), KeyVersion: keyVersion,
		})
		if err != nil {
			return AuthConnection{}, false, err
		}
	}

	var extra map[string]any
	if extraEnc.Valid {
		extraPlain, err := s.enc.Decrypt(crypto.Encrypted{
			Ciphertext: []byte(extraEnc.String), Nonce: decodeNonce(extraNonce), KeyVersion: keyVersion,
		})
		if err != nil {
			return AuthConnection{}, false, err
		}
		if extraPlain != "" {
			if err := json.Unmarshal([]byte(extraPlain), &extra); err != nil {
				return AuthConnection{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding extra JSON")
			}
		}
	}

	var expires *time.Time
	if expiresAt.Valid {
		t := expiresAt.Time
		expires = &t
	}

	return AuthConnection{
		TRN: trnStr, Tenant: tenant, Provider: provider, UserID: userID,
		AccessToken: accessToken, RefreshToken: refreshToken, TokenType: tokenType,
		Scope: scope.String, ExpiresAt: expires, Extra: extra, KeyVersion: keyVersion,
		CreatedAt: createdAt, UpdatedAt: updatedAt, Version: version,
	}, true, nil
}

func decodeNonce(n sql.NullString) []byte {
	if !n.Valid {
		return nil
	}
	return []byte(n.String)
}

func (s *SQLStore) Put(ctx context.Context, conn AuthConnection) (AuthConnection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AuthConnection{}, apperrors.Wrap(apperrors.KindInternal, err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	existing, exists, err := s.Get(ctx, conn.Ref())
	if err != nil {
		return AuthConnection{}, err
	}

	now := time.Now().UTC()
	if exists {
		conn.CreatedAt = existing.CreatedAt
		conn.Version = existing.Version + 1
		conn.TRN = existing.TRN
	} else {
		conn.CreatedAt = now
		conn.Version = 1
		conn.TRN = s.mintTRN(conn.Ref())
	}
	conn.UpdatedAt = now

	if err := s.upsert(ctx, tx, conn); err != nil {
		return AuthConnection{}, err
	}
	if err := s.appendAudit(ctx, tx, conn.TRN, AuditPut, boolToOptional(exists, existing), &conn); err != nil {
		return AuthConnection{}, err
	}
	if err := tx.Commit(); err != nil {
		return AuthConnection{}, apperrors.Wrap(apperrors.KindInternal, err, "committing transaction")
	}
	return conn, nil
}

func boolToOptional(exists bool, v AuthConnection) *AuthConnection {
	if !exists {
		return nil
	}
	return &v
}

func (s *SQLStore) upsert(ctx context.Context, tx *sql.Tx, conn AuthConnection) error {
	accessEnc, err := s.enc.Encrypt(conn.AccessToken)
	if err != nil {
		return err
	}
	var refreshCT, refreshNonce sql.NullString
	if conn.RefreshToken != "" {
		e, err := s.enc.Encrypt(conn.RefreshToken)
		if err != nil {
			return err
		}
		refreshCT = sql.NullString{String: string(e.Ciphertext), Valid: true}
		refreshNonce = sql.NullString{String: string(e.Nonce), Valid: true}
	}
	var extraCT, extraNonce sql.NullString
	if conn.Extra != nil {
		raw, err := json.Marshal(conn.Extra)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, err, "encoding extra JSON")
		}
		e, err := s.enc.Encrypt(string(raw))
		if err != nil {
			return err
		}
		extraCT = sql.NullString{String: string(e.Ciphertext), Valid: true}
		extraNonce = sql.NullString{String: string(e.Nonce), Valid: true}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO auth_connections (
			trn, tenant, provider, user_id, access_token_enc, access_token_nonce,
			refresh_token_enc, refresh_token_nonce, expires_at, token_type, scope,
			extra_enc, extra_nonce, key_version, created_at, updated_at, version
		) VALUES (%s)
		ON CONFLICT (trn) DO UPDATE SET
			access_token_enc = excluded.access_token_enc,
			access_token_nonce = excluded.access_token_nonce,
			refresh_token_enc = excluded.refresh_token_enc,
			refresh_token_nonce = excluded.refresh_token_nonce,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			scope = excluded.scope,
			extra_enc = excluded.extra_enc,
			extra_nonce = excluded.extra_nonce,
			key_version = excluded.key_version,
			updated_at = excluded.updated_at,
			version = excluded.version`,
		placeholderList(s.db, 17)),
		conn.TRN, conn.Tenant, conn.Provider, conn.UserID,
		string(accessEnc.Ciphertext), string(accessEnc.Nonce),
		refreshCT, refreshNonce, conn.ExpiresAt, conn.TokenType, conn.Scope,
		extraCT, extraNonce, accessEnc.KeyVersion, conn.CreatedAt, conn.UpdatedAt, conn.Version,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "upserting auth_connections row")
	}
	return nil
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

func (s *SQLStore) appendAudit(ctx context.Context, tx *sql.Tx, trnStr string, op AuditOperation, oldC, newC *AuthConnection) error {
	var oldEnc, newEnc sql.NullString
	if oldC != nil {
		raw, _ := json.Marshal(oldC)
		e, err := s.enc.Encrypt(string(raw))
		if err != nil {
			return err
		}
		oldEnc = sql.NullString{String: string(e.Ciphertext), Valid: true}
	}
	if newC != nil {
		raw, _ := json.Marshal(newC)
		e, err := s.enc.Encrypt(string(raw))
		if err != nil {
			return err
		}
		newEnc = sql.NullString{String: string(e.Ciphertext), Valid: true}
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO auth_connection_history (trn, operation, old_enc, new_enc, created_at)
		VALUES (%s)`, placeholderList(s.db, 5)),
		trnStr, string(op), oldEnc, newEnc, time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "appending audit history")
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, ref Ref) (bool, error) {
	existing, ok, err := s.Get(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM auth_connections WHERE trn = %s`, s.db.Placeholder(1)), existing.TRN)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, err, "deleting auth_connections row")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if err := s.appendAudit(ctx, tx, existing.TRN, AuditDelete, &existing, nil); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, err, "committing transaction")
	}
	return true, nil
}

// CompareAndSwap implements atomic CAS using a transaction that re-reads
// the current row under the same connection and aborts (rolling back) if
// it does not match expected, guaranteeing linearizability per spec.md §8.
func (s *SQLStore) CompareAndSwap(ctx context.Context, ref Ref, expected, newVal *AuthConnection) (bool, AuthConnection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, AuthConnection{}, apperrors.Wrap(apperrors.KindInternal, err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, provider, user_id, access_token_enc, access_token_nonce,
		       refresh_token_enc, refresh_token_nonce, expires_at, token_type, scope,
		       extra_enc, extra_nonce, key_version, created_at, updated_at, version
		FROM auth_connections WHERE tenant = %s AND provider = %s AND user_id = %s`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3)),
		ref.Tenant, ref.Provider, ref.UserID)
	current, exists, err := s.scanOne(row)
	if err != nil {
		return false, AuthConnection{}, err
	}

	switch {
	case expected == nil && exists:
		return false, AuthConnection{}, nil
	case expected != nil && !exists:
		return false, AuthConnection{}, nil
	case expected != nil && exists && !current.Equal(*expected):
		return false, AuthConnection{}, nil
	}

	if newVal == nil {
		if !exists {
			return true, AuthConnection{}, nil
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM auth_connections WHERE trn = %s`, s.db.Placeholder(1)), current.TRN); err != nil {
			return false, AuthConnection{}, apperrors.Wrap(apperrors.KindInternal, err, "deleting row in CAS")
		}
		if err := s.appendAudit(ctx, tx, current.TRN, AuditCAS, &current, nil); err != nil {
			return false, AuthConnection{}, err
		}
		if err := tx.Commit(); err != nil {
			return false, AuthConnection{}, apperrors.Wrap(apperrors.KindInternal, err, "committing transaction")
		}
		return true, AuthConnection{}, nil
	}

	next := *newVal
	now := time.Now().UTC()
	if exists {
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		next.TRN = current.TRN
	} else {
		next.CreatedAt = now
		next.Version = 1
		next.TRN = s.mintTRN(ref)
	}
	next.UpdatedAt = now

	if err := s.upsert(ctx, tx, next); err != nil {
		return false, AuthConnection{}, err
	}
	var oldPtr *AuthConnection
	if exists {
		oldPtr = &current
	}
	if err := s.appendAudit(ctx, tx, next.TRN, AuditCAS, oldPtr, &next); err != nil {
		return false, AuthConnection{}, err
	}
	if err := tx.Commit(); err != nil {
		return false, AuthConnection{}, apperrors.Wrap(apperrors.KindInternal, err, "committing transaction")
	}
	return true, next, nil
}

func (s *SQLStore) ListRefs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant, provider, user_id FROM auth_connections`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing auth_connections")
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var tenant, provider, user string
		if err := rows.Scan(&tenant, &provider, &user); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "scanning ref row")
		}
		refs = append(refs, Ref{Tenant: tenant, Provider: provider, UserID: user}.ConnectionKey())
	}
	return refs, rows.Err()
}

func (s *SQLStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM auth_connections WHERE expires_at IS NOT NULL AND expires_at < %s`, s.db.Placeholder(1)), time.Now().UTC())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, err, "cleaning up expired rows")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_connections`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, err, "counting auth_connections")
	}
	return n, nil
}

// RepairKeyVersion re-encrypts every auth_connections row whose key_version
// is behind the Encryption Service's current key, one row per transaction so
// a failure partway through leaves already-repaired rows committed. It is
// not part of the Store interface — MemoryStore has no key versions to
// repair — so callers (the CLI doctor command) reach it via a type
// assertion against the concrete *SQLStore.
func (s *SQLStore) RepairKeyVersion(ctx context.Context) (int, error) {
	target := s.enc.CurrentKeyVersion()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT tenant, provider, user_id FROM auth_connections WHERE key_version <> %s`,
		s.db.Placeholder(1)), target)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, err, "listing stale key_version rows")
	}
	var refs []Ref
	for rows.Next() {
		var tenant, provider, user string
		if err := rows.Scan(&tenant, &provider, &user); err != nil {
			rows.Close()
			return 0, apperrors.Wrap(apperrors.KindInternal, err, "scanning stale ref row")
		}
		refs = append(refs, Ref{Tenant: tenant, Provider: provider, UserID: user})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, apperrors.Wrap(apperrors.KindInternal, err, "iterating stale key_version rows")
	}
	rows.Close()

	repaired := 0
	for _, ref := range refs {
		if err := s.repairOne(ctx, ref); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

func (s *SQLStore) repairOne(ctx context.Context, ref Ref) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "beginning repair transaction")
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, provider, user_id, access_token_enc, access_token_nonce,
		       refresh_token_enc, refresh_token_nonce, expires_at, token_type, scope,
		       extra_enc, extra_nonce, key_version, created_at, updated_at, version
		FROM auth_connections WHERE tenant = %s AND provider = %s AND user_id = %s`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3)),
		ref.Tenant, ref.Provider, ref.UserID)
	conn, ok, err := s.scanOne(row)
	if err != nil {
		return err
	}
	if !ok || conn.KeyVersion == s.enc.CurrentKeyVersion() {
		return nil
	}

	if err := s.upsert(ctx, tx, conn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "committing repair transaction")
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
