package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jmylchreest/distill/internal/sqldb"
)

const usageTable = "usage_counters"

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_counters (
	credential_id      TEXT    NOT NULL,
	resource_id        TEXT    NOT NULL,
	window_start       BIGINT  NOT NULL DEFAULT 0,
	requests_in_window INTEGER NOT NULL DEFAULT 0,
	tokens_in_window   BIGINT  NOT NULL DEFAULT 0,
	day_stamp          TEXT    NOT NULL DEFAULT '',
	requests_today     INTEGER NOT NULL DEFAULT 0,
	updated_at         BIGINT  NOT NULL DEFAULT 0,
	PRIMARY KEY (credential_id, resource_id)
)`

var usageColumns = []string{
	"credential_id",
	"resource_id",
	"window_start",
	"requests_in_window",
	"tokens_in_window",
	"day_stamp",
	"requests_today",
}

// SQLStore persists counters in sqlite or postgres.
type SQLStore struct {
	db    *sqldb.DB
	owned bool
}

// NewSQLStore creates the usage table if needed and returns a store on db.
// The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *sqldb.DB) (*SQLStore, error) {
	if err := db.EnsureSchema(ctx, createUsageTable); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, credentialID, resourceID string) (Counter, bool, error) {
	row, err := s.db.QueryRow(ctx, s.db.Builder().
		Select(usageColumns...).
		From(usageTable).
		Where(sq.Eq{"credential_id": credentialID, "resource_id": resourceID}))
	if err != nil {
		return Counter{}, false, err
	}

	c, err := scanCounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Counter{}, false, nil
	}
	if err != nil {
		return Counter{}, false, fmt.Errorf("get usage: %w", err)
	}
	return c, true, nil
}

func (s *SQLStore) Upsert(ctx context.Context, c Counter) error {
	stmt := s.db.Builder().
		Insert(usageTable).
		Columns(append(usageColumns, "updated_at")...).
		Values(
			c.CredentialID,
			c.ResourceID,
			toMillis(c.WindowStart),
			c.RequestsInWindow,
			c.TokensInWindow,
			c.DayStamp,
			c.RequestsToday,
			time.Now().UnixMilli(),
		).
		Suffix(`ON CONFLICT (credential_id, resource_id) DO UPDATE SET
			window_start = excluded.window_start,
			requests_in_window = excluded.requests_in_window,
			tokens_in_window = excluded.tokens_in_window,
			day_stamp = excluded.day_stamp,
			requests_today = excluded.requests_today,
			updated_at = excluded.updated_at`)

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Counter, error) {
	rows, err := s.db.Query(ctx, s.db.Builder().
		Select(usageColumns...).
		From(usageTable).
		OrderBy("resource_id", "credential_id"))
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []Counter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Close closes the database only when the store opened it.
func (s *SQLStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCounter(r scanner) (Counter, error) {
	var (
		c      Counter
		millis int64
	)
	err := r.Scan(
		&c.CredentialID,
		&c.ResourceID,
		&millis,
		&c.RequestsInWindow,
		&c.TokensInWindow,
		&c.DayStamp,
		&c.RequestsToday,
	)
	c.WindowStart = fromMillis(millis)
	return c, err
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

var _ Store = (*SQLStore)(nil)
