// Package friends persists the friend link list.
package friends

import (
	"context"
	"fmt"
	"time"

	"github.com/baswilson/navsite/internal/database"
)

// Link is a friend site
type Link struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	URL         string    `db:"url" json:"url"`
	LogoURL     *string   `db:"logo_url" json:"logo_url"`
	Description *string   `db:"description" json:"description"`
	OrderNum    int       `db:"order_num" json:"order_num"`
	IsActive    int       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Input holds the writable fields of a link
type Input struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	LogoURL     *string `json:"logo_url"`
	Description *string `json:"description"`
	OrderNum    int     `json:"order_num"`
	IsActive    *int    `json:"is_active"`
}

func (in Input) active() int {
	if in.IsActive == nil {
		return 1
	}
	return *in.IsActive
}

// Store handles friend link persistence
type Store struct {
	db database.Querier
}

// NewStore creates a new friend link store
func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

const linkColumns = "id, name, url, logo_url, description, COALESCE(order_num, 0) AS order_num, COALESCE(is_active, 1) AS is_active, created_at"

// List returns links in display order. With activeOnly, disabled links are left out.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]Link, error) {
	query := "SELECT " + linkColumns + " FROM friend_links"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY order_num, id"

	links := []Link{}
	if err := s.db.Select(ctx, &links, query); err != nil {
		return nil, fmt.Errorf("failed to list friend links: %w", err)
	}
	return links, nil
}

// Get returns one link
func (s *Store) Get(ctx context.Context, id int64) (*Link, error) {
	l := &Link{}
	if err := database.First(ctx, s.db, l, "friend link", "SELECT "+linkColumns+" FROM friend_links WHERE id = ?", id); err != nil {
		return nil, err
	}
	return l, nil
}

// Create inserts a link and returns its id
func (s *Store) Create(ctx context.Context, in Input) (int64, error) {
	id, err := database.InsertedID(s.db.Run(ctx,
		"INSERT INTO friend_links (name, url, logo_url, description, order_num, is_active) VALUES (?, ?, ?, ?, ?, ?)",
		in.Name, in.URL, in.LogoURL, in.Description, in.OrderNum, in.active()))
	if err != nil {
		return 0, fmt.Errorf("failed to create friend link: %w", err)
	}
	return id, nil
}

// Update overwrites a link
func (s *Store) Update(ctx context.Context, id int64, in Input) (int64, error) {
	res, err := s.db.Run(ctx,
		"UPDATE friend_links SET name = ?, url = ?, logo_url = ?, description = ?, order_num = ?, is_active = ? WHERE id = ?",
		in.Name, in.URL, in.LogoURL, in.Description, in.OrderNum, in.active(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to update friend link: %w", err)
	}
	return res.RowsAffected, nil
}

// Delete removes a link
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.Run(ctx, "DELETE FROM friend_links WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete friend link: %w", err)
	}
	return res.RowsAffected, nil
}
