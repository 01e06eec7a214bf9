// Package settings persists the site configuration key/value pairs.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/baswilson/navsite/internal/database"
)

const upsertSQL = "INSERT INTO configs (key, value) VALUES (?, ?) " +
	"ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP"

// Store handles config persistence
type Store struct {
	db database.Transactor
}

// NewStore creates a new config store
func NewStore(db database.Transactor) *Store {
	return &Store{db: db}
}

// All returns every config as a map
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, "SELECT key, value FROM configs ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.String("key")] = r.String("value")
	}
	return out, nil
}

// Get returns the value for key and whether it exists
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	row, found, err := s.db.Get(ctx, "SELECT value FROM configs WHERE key = ?", key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	if !found {
		return "", false, nil
	}
	return row.String("value"), true, nil
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.Run(ctx, upsertSQL, key, value); err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// SetMany upserts every pair in one transaction
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	err := s.db.Transaction(ctx, func(ctx context.Context, q database.Querier) error {
		for k, v := range values {
			if _, err := q.Run(ctx, upsertSQL, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save configs: %w", err)
	}
	return nil
}

// InsertIfAbsent stores value only when key has no value yet. It reports
// whether a row was written. Losing an insert race to another instance
// counts as already present.
func (s *Store) InsertIfAbsent(ctx context.Context, key, value string) (bool, error) {
	_, exists, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	_, err = s.db.Run(ctx, "INSERT INTO configs (key, value) VALUES (?, ?)", key, value)
	if errors.Is(err, database.ErrConstraint) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert config %s: %w", key, err)
	}
	return true, nil
}
