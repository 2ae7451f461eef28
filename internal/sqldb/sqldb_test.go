package sqldb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "distill.db")

	db, err := Open(ctx, "SQLite", path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.Driver() != DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", db.Driver())
	}

	if err := db.EnsureSchema(ctx, `CREATE TABLE IF NOT EXISTS t (k TEXT PRIMARY KEY, v INTEGER)`); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if _, err := db.Exec(ctx, db.Builder().Insert("t").Columns("k", "v").Values("a", 7)); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	row, err := db.QueryRow(ctx, db.Builder().Select("v").From("t").Where("k = ?", "a"))
	if err != nil {
		t.Fatal(err)
	}
	var v int
	if err := row.Scan(&v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported driver error, got %v", err)
	}
}

func TestBuilder_PostgresPlaceholders(t *testing.T) {
	db := &DB{driver: DriverPostgres}
	db.builder = postgresBuilder()

	query, _, err := db.Builder().Select("v").From("t").Where("k = ?", "a").ToSql()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(query, "$1") {
		t.Errorf("expected dollar placeholder, got %q", query)
	}
}
