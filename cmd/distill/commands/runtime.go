package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jmylchreest/distill/internal/config"
	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/internal/output"
	"github.com/jmylchreest/distill/internal/sqldb"
	"github.com/jmylchreest/distill/internal/version"
	"github.com/jmylchreest/distill/pkg/keypool"
	"github.com/jmylchreest/distill/pkg/llm"
	"github.com/jmylchreest/distill/pkg/quota"
	"github.com/jmylchreest/distill/pkg/usage"
)

// credentialDB opens the relational store holding the credentials table.
// Without an explicit driver it shares the usage store's database.
func credentialDB(ctx context.Context, c *config.Config) (*sqldb.DB, error) {
	driver, dsn := c.Credentials.Driver, c.Credentials.DSN
	if driver == "" {
		switch c.Usage.Driver {
		case usage.DriverSQLite, usage.DriverPostgres:
			driver, dsn = c.Usage.Driver, c.Usage.DSN
		default:
			return nil, fmt.Errorf("credential store needs credentials.driver when usage.driver is %q", c.Usage.Driver)
		}
	}
	return sqldb.Open(ctx, driver, dsn)
}

// openKeys returns the credential table, closing the database with close.
func openKeys(ctx context.Context, c *config.Config) (*keypool.SQLSource, func(), error) {
	db, err := credentialDB(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	src, err := keypool.NewSQLSource(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return src, func() { _ = db.Close() }, nil
}

func loadCredentials(ctx context.Context, c *config.Config) ([]keypool.Credential, error) {
	if c.Credentials.Source == config.SourceFile {
		return keypool.FileSource{Path: c.Credentials.File}.Load(ctx)
	}
	src, closeDB, err := openKeys(ctx, c)
	if err != nil {
		return nil, err
	}
	defer closeDB()
	return src.Load(ctx)
}

// session is everything an extraction needs, opened from config.
type session struct {
	catalog *quota.Catalog
	store   usage.Store
	pool    *keypool.Pool
	client  *llm.Client
	calls   *llm.CallStats
}

func openSession(ctx context.Context, c *config.Config) (*session, error) {
	catalog, err := c.Catalog()
	if err != nil {
		return nil, err
	}

	creds, err := loadCredentials(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, errors.New("no credentials configured (see distill keys add)")
	}

	store, err := usage.Open(ctx, c.Usage)
	if err != nil {
		return nil, err
	}

	pool, err := keypool.New(catalog, store, creds)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if c.Credentials.Source == config.SourceFile && c.Credentials.Watch {
		if err := keypool.Watch(ctx, c.Credentials.File, pool); err != nil {
			logger.Warn("credential file watch disabled", "error", err)
		}
	}

	providerCfg := llm.DefaultProviderConfig()
	providerCfg.BaseURL = c.Provider.BaseURL
	providerCfg.Timeout = c.Provider.Timeout
	providerCfg.UserAgent = version.UserAgent()

	calls := llm.NewCallStats()
	client := llm.NewClient(pool, llm.ClientConfig{
		System:      c.Provider.System,
		Temperature: c.Provider.Temperature,
		MaxTokens:   c.Provider.MaxTokens,
		JSONMode:    true,
		Provider:    providerCfg,
	}, llm.WithObserver(calls))

	stats := pool.Stats()
	logger.Debug("session opened",
		"resource", c.Extract.Resource,
		"credentials", stats.Available,
		"usage", c.Usage.Driver)

	return &session{catalog: catalog, store: store, pool: pool, client: client, calls: calls}, nil
}

func (s *session) Close() error {
	return errors.Join(s.client.Close(), s.store.Close())
}

// createOutput opens path for writing, or stdout when path is empty.
func createOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path) //#nosec G304 -- CLI tool writes to user-specified output file
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func outputFormat(name, path string) (output.Format, error) {
	if name != "" {
		return output.ParseFormat(name)
	}
	return output.FormatForPath(path, output.FormatJSON), nil
}
