package database

import (
	"context"
	"fmt"
	"time"

	"github.com/baswilson/navsite/internal/dialect"
	"github.com/jmoiron/sqlx"
)

// Driver represents a database driver that can be used by the application.
// This abstraction allows swapping between PostgreSQL and SQLite implementations.
// Only the Store talks to a Driver; handlers never see one.
type Driver interface {
	// DB returns the underlying connection pool
	DB() *sqlx.DB

	// Close closes the database connection
	Close() error

	// Type returns the database type (e.g., "postgres", "sqlite")
	Type() string

	// Dialect returns the SQL dialect statements must be translated into
	Dialect() dialect.Name

	// Classify sorts an engine error into the error taxonomy
	Classify(err error) ErrorClass
}

// Config holds database configuration
type Config struct {
	// Type is the database type: "postgres" or "sqlite"
	Type string

	// For PostgreSQL
	PostgresURL     string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// For SQLite
	SQLitePath  string
	BusyTimeout time.Duration

	// Production requires TLS to PostgreSQL.
	Production bool

	// NoIDTables overrides the tables inserts never request an id from.
	NoIDTables []string

	// RetryBaseDelay is the first backoff step for retried reads.
	RetryBaseDelay time.Duration
	// RetryMax is how many times a read is retried after a connection error.
	RetryMax uint64
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxConns / 2
		if c.MaxIdleConns == 0 {
			c.MaxIdleConns = 1
		}
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "./data/nav.db"
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	if c.NoIDTables == nil {
		c.NoIDTables = dialect.DefaultNoIDTables
	}
	return c
}

// Open connects to the engine selected by cfg.Type. Exactly one engine is
// used per process.
func Open(ctx context.Context, cfg Config) (Driver, error) {
	cfg = cfg.withDefaults()

	name, err := dialect.ParseName(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to select database driver: %w", err)
	}

	switch name {
	case dialect.Postgres:
		return NewPostgresDriver(ctx, cfg)
	default:
		return NewSQLiteDriver(ctx, cfg)
	}
}
