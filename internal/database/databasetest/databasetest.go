// Package databasetest provides initialized stores for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/baswilson/navsite/internal/database"
	"github.com/rs/zerolog"
)

// NewSQLite returns an initialized store backed by a fresh SQLite file in a
// temporary directory. The store is closed when the test ends.
func NewSQLite(t testing.TB) *database.Store {
	t.Helper()

	s := database.NewStore(
		database.Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "nav.db")},
		database.WithLogger(Logger(t)),
	)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Logger returns a logger that writes to t.Log.
func Logger(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
