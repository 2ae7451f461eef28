package keypool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/distill/internal/sqldb"
	"github.com/jmylchreest/distill/pkg/quota"
)

// Source loads the credential set.
type Source interface {
	Load(ctx context.Context) ([]Credential, error)
}

// FileSource reads credentials from a YAML file:
//
//	credentials:
//	  - name: primary
//	    secret_env: GEMINI_KEY_PRIMARY
//	    tier: free
//	    priority: 1
type FileSource struct {
	Path string
}

type credentialFile struct {
	Credentials []Credential `yaml:"credentials"`
}

// Load parses the file. Secrets referenced through secret_env are resolved
// when the pool loads them.
func (s FileSource) Load(_ context.Context) ([]Credential, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return f.Credentials, nil
}

const credentialTable = "credentials"

const createCredentialTable = `
CREATE TABLE IF NOT EXISTS credentials (
	name     TEXT    PRIMARY KEY NOT NULL,
	secret   TEXT    NOT NULL,
	priority INTEGER NOT NULL DEFAULT 10,
	tier     TEXT    NOT NULL DEFAULT 'free',
	added_at BIGINT  NOT NULL DEFAULT 0
)`

// ErrCredentialNotFound is returned when a named credential does not exist.
var ErrCredentialNotFound = errors.New("credential not found")

// SQLSource stores credentials in the relational store.
type SQLSource struct {
	db *sqldb.DB
}

// NewSQLSource creates the credential table if needed.
func NewSQLSource(ctx context.Context, db *sqldb.DB) (*SQLSource, error) {
	if err := db.EnsureSchema(ctx, createCredentialTable); err != nil {
		return nil, err
	}
	return &SQLSource{db: db}, nil
}

// Add inserts a new credential.
func (s *SQLSource) Add(ctx context.Context, c Credential) error {
	if err := c.resolve(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, s.db.Builder().
		Insert(credentialTable).
		Columns("name", "secret", "priority", "tier", "added_at").
		Values(c.Name, c.Secret, c.Priority, string(c.Tier), time.Now().Unix()))
	if err != nil {
		return fmt.Errorf("add credential %q: %w", c.Name, err)
	}
	return nil
}

// SetTier changes the tier of a named credential.
func (s *SQLSource) SetTier(ctx context.Context, name string, tier quota.Tier) error {
	res, err := s.db.Exec(ctx, s.db.Builder().
		Update(credentialTable).
		Set("tier", string(tier)).
		Where(sq.Eq{"name": name}))
	if err != nil {
		return fmt.Errorf("update credential %q: %w", name, err)
	}
	return expectOne(res, name)
}

// Delete removes a named credential.
func (s *SQLSource) Delete(ctx context.Context, name string) error {
	res, err := s.db.Exec(ctx, s.db.Builder().
		Delete(credentialTable).
		Where(sq.Eq{"name": name}))
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", name, err)
	}
	return expectOne(res, name)
}

// Load returns all credentials ordered by priority then name.
func (s *SQLSource) Load(ctx context.Context) ([]Credential, error) {
	rows, err := s.db.Query(ctx, s.db.Builder().
		Select("name", "secret", "priority", "tier").
		From(credentialTable).
		OrderBy("priority ASC", "name ASC"))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var (
			c    Credential
			tier string
		)
		if err := rows.Scan(&c.Name, &c.Secret, &c.Priority, &tier); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.Tier = quota.Tier(tier)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func expectOne(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}
	return nil
}

var (
	_ Source = FileSource{}
	_ Source = (*SQLSource)(nil)
)
