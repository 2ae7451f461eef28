// Package sqldb opens the relational store shared by usage counters and the
// credential table. Sqlite (modernc, cgo-free) and Postgres (lib/pq) are
// supported; queries are built with squirrel so the placeholder dialect
// follows the driver.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps the SQL connection with a dialect-aware statement builder.
type DB struct {
	*sql.DB
	driver  string
	builder sq.StatementBuilderType
}

// Open connects to the database and applies driver-specific setup.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	driver = strings.ToLower(driver)

	var builder sq.StatementBuilderType
	switch driver {
	case DriverSQLite:
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case DriverPostgres, "postgresql":
		driver = DriverPostgres
		builder = postgresBuilder()
	default:
		return nil, fmt.Errorf("unsupported sql driver %q (expected sqlite or postgres)", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One writer keeps sqlite from returning SQLITE_BUSY under worker fan-out.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: driver, builder: builder}

	if driver == DriverSQLite {
		if err := db.pragmas(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Driver returns the normalized driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Builder returns a squirrel builder using the driver's placeholders.
func (db *DB) Builder() sq.StatementBuilderType {
	return db.builder
}

// Exec runs a built statement.
func (db *DB) Exec(ctx context.Context, stmt sq.Sqlizer) (sql.Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return db.ExecContext(ctx, query, args...)
}

// Query runs a built select.
func (db *DB) Query(ctx context.Context, stmt sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return db.QueryContext(ctx, query, args...)
}

// QueryRow runs a built select expected to return at most one row.
func (db *DB) QueryRow(ctx context.Context, stmt sq.Sqlizer) (*sql.Row, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return db.QueryRowContext(ctx, query, args...), nil
}

// EnsureSchema executes each DDL statement in order.
func (db *DB) EnsureSchema(ctx context.Context, ddl ...string) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (db *DB) pragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func postgresBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
