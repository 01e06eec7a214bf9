package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/baswilson/navsite/internal/database"
)

// Card is a link shown under a menu or sub-menu
type Card struct {
	ID             int64     `db:"id" json:"id"`
	MenuID         int64     `db:"menu_id" json:"menu_id"`
	SubMenuID      *int64    `db:"sub_menu_id" json:"sub_menu_id"`
	Title          string    `db:"title" json:"title"`
	URL            string    `db:"url" json:"url"`
	LogoURL        *string   `db:"logo_url" json:"logo_url"`
	CustomLogoPath *string   `db:"custom_logo_path" json:"custom_logo_path"`
	Desc           *string   `db:"desc" json:"desc"`
	OrderNum       int       `db:"order_num" json:"order_num"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CardInput holds the writable fields of a card
type CardInput struct {
	MenuID         int64   `json:"menu_id"`
	SubMenuID      *int64  `json:"sub_menu_id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	LogoURL        *string `json:"logo_url"`
	CustomLogoPath *string `json:"custom_logo_path"`
	Desc           *string `json:"desc"`
	OrderNum       int     `json:"order_num"`
}

const cardColumns = `id, menu_id, sub_menu_id, title, url, logo_url, custom_logo_path, "desc", COALESCE(order_num, 0) AS order_num, created_at`

// ListCards returns the cards of a menu. With a sub-menu id only that
// sub-menu's cards are returned; without one only cards filed directly under
// the menu are.
func (s *Store) ListCards(ctx context.Context, menuID int64, subMenuID *int64) ([]Card, error) {
	cards := []Card{}

	var err error
	if subMenuID != nil {
		err = s.db.Select(ctx, &cards,
			"SELECT "+cardColumns+" FROM cards WHERE menu_id = ? AND sub_menu_id = ? ORDER BY order_num, id",
			menuID, *subMenuID)
	} else {
		err = s.db.Select(ctx, &cards,
			"SELECT "+cardColumns+" FROM cards WHERE menu_id = ? AND (sub_menu_id IS NULL OR sub_menu_id = 0) ORDER BY order_num, id",
			menuID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// GetCard returns one card
func (s *Store) GetCard(ctx context.Context, id int64) (*Card, error) {
	c := &Card{}
	if err := database.First(ctx, s.db, c, "card", "SELECT "+cardColumns+" FROM cards WHERE id = ?", id); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCard inserts a card and returns its id
func (s *Store) CreateCard(ctx context.Context, in CardInput) (int64, error) {
	id, err := database.InsertedID(s.db.Run(ctx,
		`INSERT INTO cards (menu_id, sub_menu_id, title, url, logo_url, custom_logo_path, "desc", order_num)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.MenuID, normalizeSubMenu(in.SubMenuID), in.Title, in.URL, in.LogoURL, in.CustomLogoPath, in.Desc, in.OrderNum))
	if err != nil {
		return 0, fmt.Errorf("failed to create card: %w", err)
	}
	return id, nil
}

// UpdateCard overwrites a card's content and placement. The owning menu is
// kept.
func (s *Store) UpdateCard(ctx context.Context, id int64, in CardInput) (int64, error) {
	res, err := s.db.Run(ctx,
		`UPDATE cards SET title = ?, url = ?, logo_url = ?, custom_logo_path = ?, "desc" = ?, order_num = ?, sub_menu_id = ?
		WHERE id = ?`,
		in.Title, in.URL, in.LogoURL, in.CustomLogoPath, in.Desc, in.OrderNum, normalizeSubMenu(in.SubMenuID), id)
	if err != nil {
		return 0, fmt.Errorf("failed to update card: %w", err)
	}
	return res.RowsAffected, nil
}

// DeleteCard removes a card
func (s *Store) DeleteCard(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.Run(ctx, "DELETE FROM cards WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete card: %w", err)
	}
	return res.RowsAffected, nil
}

// SortCards sets order_num to each id's position in ids, atomically
func (s *Store) SortCards(ctx context.Context, ids []int64) error {
	return sortTable(ctx, s.db, "cards", ids)
}

// normalizeSubMenu maps the legacy "0 means none" convention to NULL.
func normalizeSubMenu(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}
