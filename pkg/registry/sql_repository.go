package registry

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

// SQLConnectionRepository persists ConnectionRecord rows to
// connection_records, one row per version (append-only; never updated in
// place).
type SQLConnectionRepository struct {
	db *storage.DB
}

// NewSQLConnectionRepository constructs a ConnectionRepository over an
// already-migrated database.
func NewSQLConnectionRepository(db *storage.DB) *SQLConnectionRepository {
	return &SQLConnectionRepository{db: db}
}

func (r *SQLConnectionRepository) Latest(ctx context.Context, tenant, connector, name string) (ConnectionRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, connector, name, version, config_json, description, metadata_json, created_at
		FROM connection_records
		WHERE tenant = %s AND connector = %s AND name = %s
		ORDER BY version DESC LIMIT 1`,
		r.db.Placeholder(1), r.db.Placeholder(2), r.db.Placeholder(3)),
		tenant, connector, name)
	return scanConnectionRow(row)
}

func scanConnectionRow(row interface{ Scan(dest ...any) error }) (ConnectionRecord, bool, error) {
	var (
		trnStr, tenant, connector, name string
		version                         int64
		configJSON                      string
		description                    sql.NullString
		metadataJSON                    sql.NullString
		createdAt                       time.Time
	)
	err := row.Scan(&trnStr, &tenant, &connector, &name, &version, &configJSON, &description, &metadataJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConnectionRecord{}, false, nil
	}
	if err != nil {
		return ConnectionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "scanning connection_records row")
	}
	rec := ConnectionRecord{
		TRN: trnStr, Tenant: tenant, Connector: connector, Name: name, Version: version,
		Description: description.String, CreatedAt: createdAt,
	}
	if err := json.Unmarshal([]byte(configJSON), &rec.Config); err != nil {
		return ConnectionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding connection config JSON")
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return ConnectionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding connection metadata JSON")
		}
	}
	return rec, true, nil
}

func (r *SQLConnectionRepository) GetVersion(ctx context.Context, tenant, connector, name string, version int64) (ConnectionRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, connector, name, version, config_json, description, metadata_json, created_at
		FROM connection_records
		WHERE tenant = %s AND connector = %s AND name = %s AND version = %s`,
		r.db.Placeholder(1), r.db.Placeholder(2), r.db.Placeholder(3), r.db.Placeholder(4)),
		tenant, connector, name, version)
	return scanConnectionRow(row)
}

func (r *SQLConnectionRepository) Insert(ctx context.Context, rec ConnectionRecord) error {
	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "encoding connection config JSON")
	}
	var metadataJSON []byte
	if rec.Metadata != nil {
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, err, "encoding connection metadata JSON")
		}
	}
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO connection_records (trn, tenant, connector, name, version, config_json, description, metadata_json, created_at)
		VALUES (%s)`, placeholderList(r.db, 9)),
		rec.TRN, rec.Tenant, rec.Connector, rec.Name, rec.Version, string(configJSON), rec.Description, nullableJSON(metadataJSON), rec.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "inserting connection_records row")
	}
	return nil
}

func (r *SQLConnectionRepository) ListByConnector(ctx context.Context, tenant, connector string) ([]ConnectionRecord, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, connector, name, version, config_json, description, metadata_json, created_at
		FROM connection_records c1
		WHERE tenant = %s AND connector = %s
		AND version = (SELECT MAX(version) FROM connection_records c2 WHERE c2.tenant = c1.tenant AND c2.connector = c1.connector AND c2.name = c1.name)`,
		r.db.Placeholder(1), r.db.Placeholder(2)), tenant, connector)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing connection_records")
	}
	defer rows.Close()

	var out []ConnectionRecord
	for rows.Next() {
		rec, ok, err := scanConnectionRow(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (r *SQLConnectionRepository) Connectors(ctx context.Context, tenant string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT connector FROM connection_records WHERE tenant = %s`, r.db.Placeholder(1)), tenant)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing connectors")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "scanning connector name")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SQLActionRepository persists ActionRecord rows to action_records.
type SQLActionRepository struct {
	db *storage.DB
}

// NewSQLActionRepository constructs an ActionRepository over an
// already-migrated database.
func NewSQLActionRepository(db *storage.DB) *SQLActionRepository {
	return &SQLActionRepository{db: db}
}

func (r *SQLActionRepository) Latest(ctx context.Context, tenant, connector, name string) (ActionRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, connector, name, version, connection_trn, config_json, mcp_enabled, mcp_overrides_json, metadata_json, created_at
		FROM action_records
		WHERE tenant = %s AND connector = %s AND name = %s
		ORDER BY version DESC LIMIT 1`,
		r.db.Placeholder(1), r.db.Placeholder(2), r.db.Placeholder(3)),
		tenant, connector, name)
	return scanActionRow(row)
}

func scanActionRow(row interface{ Scan(dest ...any) error }) (ActionRecord, bool, error) {
	var (
		trnStr, tenant, connector, name, connTRN string
		version                                  int64
		configJSON                                string
		mcpEnabled                                bool
		mcpOverridesJSON, metadataJSON            sql.NullString
		createdAt                                 time.Time
	)
	err := row.Scan(&trnStr, &tenant, &connector, &name, &version, &connTRN, &configJSON, &mcpEnabled, &mcpOverridesJSON, &metadataJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ActionRecord{}, false, nil
	}
	if err != nil {
		return ActionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "scanning action_records row")
	}
	rec := ActionRecord{
		TRN: trnStr, Tenant: tenant, Connector: connector, Name: name, Version: version,
		ConnectionTRN: connTRN, MCPEnabled: mcpEnabled, CreatedAt: createdAt,
	}
	if err := json.Unmarshal([]byte(configJSON), &rec.Config); err != nil {
		return ActionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding action config JSON")
	}
	if mcpOverridesJSON.Valid && mcpOverridesJSON.String != "" {
		if err := json.Unmarshal([]byte(mcpOverridesJSON.String), &rec.MCPOverrides); err != nil {
			return ActionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding mcp_overrides JSON")
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return ActionRecord{}, false, apperrors.Wrap(apperrors.KindInternal, err, "decoding action metadata JSON")
		}
	}
	return rec, true, nil
}

func (r *SQLActionRepository) GetVersion(ctx context.Context, tenant, connector, name string, version int64) (ActionRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, connector, name, version, connection_trn, config_json, mcp_enabled, mcp_overrides_json, metadata_json, created_at
		FROM action_records
		WHERE tenant = %s AND connector = %s AND name = %s AND version = %s`,
		r.db.Placeholder(1), r.db.Placeholder(2), r.db.Placeholder(3), r.db.Placeholder(4)),
		tenant, connector, name, version)
	return scanActionRow(row)
}

func (r *SQLActionRepository) Insert(ctx context.Context, rec ActionRecord) error {
	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "encoding action config JSON")
	}
	var mcpOverridesJSON, metadataJSON []byte
	if rec.MCPOverrides != nil {
		mcpOverridesJSON, err = json.Marshal(rec.MCPOverrides)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, err, "encoding mcp_overrides JSON")
		}
	}
	if rec.Metadata != nil {
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, err, "encoding action metadata JSON")
		}
	}
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO action_records (trn, tenant, connector, name, version, connection_trn, config_json, mcp_enabled, mcp_overrides_json, metadata_json, created_at)
		VALUES (%s)`, placeholderList(r.db, 11)),
		rec.TRN, rec.Tenant, rec.Connector, rec.Name, rec.Version, rec.ConnectionTRN, string(configJSON),
		rec.MCPEnabled, nullableJSON(mcpOverridesJSON), nullableJSON(metadataJSON), rec.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "inserting action_records row")
	}
	return nil
}

func (r *SQLActionRepository) ListByConnector(ctx context.Context, tenant, connector string) ([]ActionRecord, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT trn, tenant, connector, name, version, connection_trn, config_json, mcp_enabled, mcp_overrides_json, metadata_json, created_at
		FROM action_records a1
		WHERE tenant = %s AND connector = %s
		AND version = (SELECT MAX(version) FROM action_records a2 WHERE a2.tenant = a1.tenant AND a2.connector = a1.connector AND a2.name = a1.name)`,
		r.db.Placeholder(1), r.db.Placeholder(2)), tenant, connector)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing action_records")
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		rec, ok, err := scanActionRow(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (r *SQLActionRepository) Connectors(ctx context.Context, tenant string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT connector FROM action_records WHERE tenant = %s`, r.db.Placeholder(1)), tenant)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "listing connectors")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, err, "scanning connector name")
		}
		out = append(out, c)
	}
	return out, rows.Err()
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

func nullableJSON(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

var (
	_ ConnectionRepository = (*SQLConnectionRepository)(nil)
	_ ActionRepository     = (*SQLActionRepository)(nil)
)
