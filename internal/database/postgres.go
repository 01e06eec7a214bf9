package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/baswilson/navsite/internal/dialect"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// ErrInsecureTransport is returned when a production configuration points at
// PostgreSQL without TLS.
var ErrInsecureTransport = errors.New("TLS is required for PostgreSQL in production (sslmode=disable is not allowed)")

// PostgresDriver implements Driver for PostgreSQL database
type PostgresDriver struct {
	db *sqlx.DB
}

// NewPostgresDriver creates a new PostgreSQL database driver
func NewPostgresDriver(ctx context.Context, cfg Config) (*PostgresDriver, error) {
	cfg = cfg.withDefaults()
	if cfg.PostgresURL == "" {
		return nil, &ConnectionError{Op: "open", Err: errors.New("DATABASE_URL is required for postgres")}
	}

	connConfig, err := parsePostgresConfig(cfg.PostgresURL, cfg.Production)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}

	db := sqlx.NewDb(stdlib.OpenDB(*connConfig), "pgx")
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Op: "ping", Err: fmt.Errorf("failed to connect to postgres: %w", err)}
	}

	return &PostgresDriver{db: db}, nil
}

// parsePostgresConfig parses dsn and enforces the transport posture. In
// production sslmode defaults to require and plaintext is refused.
func parsePostgresConfig(dsn string, production bool) (*pgx.ConnConfig, error) {
	if production && !strings.Contains(dsn, "sslmode=") {
		dsn = withSSLMode(dsn, "require")
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}

	if production {
		if connConfig.TLSConfig == nil {
			return nil, ErrInsecureTransport
		}
		// prefer/allow fall back to plaintext; drop those.
		secure := connConfig.Fallbacks[:0]
		for _, fb := range connConfig.Fallbacks {
			if fb.TLSConfig != nil {
				secure = append(secure, fb)
			}
		}
		connConfig.Fallbacks = secure
	}
	return connConfig, nil
}

func withSSLMode(dsn, mode string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("sslmode", mode)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " sslmode=" + mode
}

// DB returns the underlying connection pool
func (d *PostgresDriver) DB() *sqlx.DB {
	return d.db
}

// Close closes the database connection pool
func (d *PostgresDriver) Close() error {
	return d.db.Close()
}

// Type returns the database type
func (d *PostgresDriver) Type() string {
	return "postgres"
}

// Dialect returns dialect.Postgres
func (d *PostgresDriver) Dialect() dialect.Name {
	return dialect.Postgres
}

// Classify maps SQLSTATE classes onto the error taxonomy
func (d *PostgresDriver) Classify(err error) ErrorClass {
	return classifyPostgres(err)
}

func classifyPostgres(err error) ErrorClass {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return ClassConnection
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ClassUnknown
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "23"):
		return ClassConstraint
	case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"),
		strings.HasPrefix(pgErr.Code, "57P"):
		return ClassConnection
	}
	return ClassStatement
}
