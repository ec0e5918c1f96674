// Package storage opens the shared relational database connection pool and
// applies schema migrations for both supported backends: an embedded,
// pure-Go SQLite (development / single-node) and PostgreSQL (production).
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	_ "modernc.org/sqlite"             // registers "sqlite" driver

	"github.com/aionixone/openact-sub001/pkg/apperrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect identifies the SQL dialect in use, since placeholder syntax and a
// handful of DDL details differ between SQLite and Postgres.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB bundles a connection pool with its resolved dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open parses dsn's scheme ("sqlite://" or "postgres://"/"postgresql://"),
// opens the pool, and runs goose migrations to the latest version.
func Open(dsn string) (*DB, error) {
	dialect, driverDSN, driverName, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driverName, driverDSN)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "opening database")
	}

	db := &DB{DB: conn, Dialect: dialect}
	if err := db.migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func parseDSN(dsn string) (dialect Dialect, driverDSN, driverName string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://"), "sqlite", nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, "pgx", nil
	default:
		return "", "", "", apperrors.Newf(apperrors.KindInvalidArguments,
			"unrecognized database URL scheme in %q (expected sqlite:// or postgres://)", dsn)
	}
}

func (db *DB) migrate() error {
	goose.SetBaseFS(migrationsFS)
	dialect := "sqlite3"
	if db.Dialect == DialectPostgres {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "setting goose dialect")
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "applying migrations")
	}
	return nil
}

// Placeholder returns the n-th (1-indexed) positional placeholder for the
// database's dialect: "$1" for Postgres, "?" for SQLite.
func (db *DB) Placeholder(n int) string {
	if db.Dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
