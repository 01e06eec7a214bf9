package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/baswilson/navsite/internal/dialect"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const memoryPath = ":memory:"

// SQLiteDriver implements Driver for SQLite database
type SQLiteDriver struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteDriver creates a new SQLite database driver
func NewSQLiteDriver(ctx context.Context, cfg Config) (*SQLiteDriver, error) {
	cfg = cfg.withDefaults()
	path := cfg.SQLitePath

	params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())
	if path != memoryPath {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, &ConnectionError{Op: "open", Err: fmt.Errorf("failed to create database directory: %w", err)}
		}
		params += "&_journal_mode=WAL"
	}

	db, err := sqlx.Open("sqlite3", path+"?"+params)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: fmt.Errorf("failed to open sqlite database: %w", err)}
	}

	// One handle: SQLite serializes writers anyway, and an in-memory database
	// only lives as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Op: "ping", Err: fmt.Errorf("failed to connect to sqlite database: %w", err)}
	}

	return &SQLiteDriver{db: db, path: path}, nil
}

// DB returns the underlying connection
func (d *SQLiteDriver) DB() *sqlx.DB {
	return d.db
}

// Close closes the database connection
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

// Type returns the database type
func (d *SQLiteDriver) Type() string {
	return "sqlite"
}

// Dialect returns dialect.SQLite
func (d *SQLiteDriver) Dialect() dialect.Name {
	return dialect.SQLite
}

// Path returns the database file path
func (d *SQLiteDriver) Path() string {
	return d.path
}

// Classify maps sqlite result codes onto the error taxonomy
func (d *SQLiteDriver) Classify(err error) ErrorClass {
	return classifySQLite(err)
}

func classifySQLite(err error) ErrorClass {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return ClassUnknown
	}
	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		return ClassConstraint
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr,
		sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrReadonly:
		return ClassConnection
	}
	return ClassStatement
}
