package usage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/distill/internal/sqldb"
)

// Store persists usage counters. Implementations must tolerate concurrent
// upserts; the last writer wins.
type Store interface {
	// Get returns the counter for a pair, or false if none was recorded.
	Get(ctx context.Context, credentialID, resourceID string) (Counter, bool, error)
	// Upsert inserts or replaces the counter for its pair.
	Upsert(ctx context.Context, c Counter) error
	// List returns every stored counter.
	List(ctx context.Context) ([]Counter, error)
	// Close releases backend resources.
	Close() error
}

// Backend names accepted in Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = sqldb.DriverSQLite
	DriverPostgres = sqldb.DriverPostgres
	DriverRedis    = "redis"
)

// Config selects and addresses a usage backend.
type Config struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=memory sqlite postgres redis"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// DefaultConfig keeps counters in a local sqlite file.
func DefaultConfig() Config {
	return Config{
		Driver: DriverSQLite,
		DSN:    "distill.db",
	}
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite, DriverPostgres, "postgresql":
		db, err := sqldb.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.owned = true
		return s, nil
	case DriverRedis:
		return NewRedisStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown usage driver %q", cfg.Driver)
	}
}
