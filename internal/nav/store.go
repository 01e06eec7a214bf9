// Package nav persists the navigation tree: menus, their sub-menus and the
// link cards filed under either.
package nav

import (
	"context"
	"fmt"
	"time"

	"github.com/baswilson/navsite/internal/database"
)

// Menu is a top level navigation entry
type Menu struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OrderNum  int       `db:"order_num" json:"order_num"`
	IsPublic  int       `db:"is_public" json:"is_public"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	SubMenus  []SubMenu `db:"-" json:"sub_menus"`
}

// SubMenu groups cards inside a menu
type SubMenu struct {
	ID        int64     `db:"id" json:"id"`
	MenuID    int64     `db:"menu_id" json:"menu_id"`
	Name      string    `db:"name" json:"name"`
	OrderNum  int       `db:"order_num" json:"order_num"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MenuInput holds the writable fields of a menu
type MenuInput struct {
	Name     string `json:"name"`
	OrderNum int    `json:"order_num"`
	IsPublic *int   `json:"is_public"`
}

// Store handles menu, sub-menu and card persistence
type Store struct {
	db database.Transactor
}

// NewStore creates a new navigation store
func NewStore(db database.Transactor) *Store {
	return &Store{db: db}
}

const menuColumns = "id, name, COALESCE(order_num, 0) AS order_num, COALESCE(is_public, 1) AS is_public, created_at"

const subMenuColumns = "id, menu_id, name, COALESCE(order_num, 0) AS order_num, created_at"

// ListMenus returns every menu in display order with its sub-menus attached
func (s *Store) ListMenus(ctx context.Context) ([]Menu, error) {
	menus := []Menu{}
	if err := s.db.Select(ctx, &menus, "SELECT "+menuColumns+" FROM menus ORDER BY order_num, id"); err != nil {
		return nil, fmt.Errorf("failed to list menus: %w", err)
	}

	subs := []SubMenu{}
	if err := s.db.Select(ctx, &subs, "SELECT "+subMenuColumns+" FROM sub_menus ORDER BY order_num, id"); err != nil {
		return nil, fmt.Errorf("failed to list sub-menus: %w", err)
	}

	byMenu := make(map[int64][]SubMenu, len(menus))
	for _, sm := range subs {
		byMenu[sm.MenuID] = append(byMenu[sm.MenuID], sm)
	}
	for i := range menus {
		menus[i].SubMenus = byMenu[menus[i].ID]
		if menus[i].SubMenus == nil {
			menus[i].SubMenus = []SubMenu{}
		}
	}
	return menus, nil
}

// GetMenu returns one menu without its sub-menus
func (s *Store) GetMenu(ctx context.Context, id int64) (*Menu, error) {
	m := &Menu{}
	if err := database.First(ctx, s.db, m, "menu", "SELECT "+menuColumns+" FROM menus WHERE id = ?", id); err != nil {
		return nil, err
	}
	return m, nil
}

// CountMenus returns the number of menus
func (s *Store) CountMenus(ctx context.Context) (int64, error) {
	row, _, err := s.db.Get(ctx, "SELECT COUNT(*) AS count FROM menus")
	if err != nil {
		return 0, fmt.Errorf("failed to count menus: %w", err)
	}
	return row.Int64("count"), nil
}

// CreateMenu inserts a menu and returns its id. Menus are public unless
// IsPublic says otherwise.
func (s *Store) CreateMenu(ctx context.Context, in MenuInput) (int64, error) {
	isPublic := 1
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}
	id, err := database.InsertedID(s.db.Run(ctx,
		"INSERT INTO menus (name, order_num, is_public) VALUES (?, ?, ?)",
		in.Name, in.OrderNum, isPublic))
	if err != nil {
		return 0, fmt.Errorf("failed to create menu: %w", err)
	}
	return id, nil
}

// UpdateMenu overwrites a menu and returns the number of rows changed
func (s *Store) UpdateMenu(ctx context.Context, id int64, in MenuInput) (int64, error) {
	isPublic := 1
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}
	res, err := s.db.Run(ctx, "UPDATE menus SET name = ?, order_num = ?, is_public = ? WHERE id = ?",
		in.Name, in.OrderNum, isPublic, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update menu: %w", err)
	}
	return res.RowsAffected, nil
}

// DeleteMenu removes a menu; its sub-menus and cards cascade
func (s *Store) DeleteMenu(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.Run(ctx, "DELETE FROM menus WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete menu: %w", err)
	}
	return res.RowsAffected, nil
}

// SortMenus sets order_num to each id's position in ids, atomically
func (s *Store) SortMenus(ctx context.Context, ids []int64) error {
	return sortTable(ctx, s.db, "menus", ids)
}

// ListSubMenus returns the sub-menus of a menu in display order
func (s *Store) ListSubMenus(ctx context.Context, menuID int64) ([]SubMenu, error) {
	subs := []SubMenu{}
	err := s.db.Select(ctx, &subs, "SELECT "+subMenuColumns+" FROM sub_menus WHERE menu_id = ? ORDER BY order_num, id", menuID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-menus: %w", err)
	}
	return subs, nil
}

// CreateSubMenu inserts a sub-menu under menuID and returns its id
func (s *Store) CreateSubMenu(ctx context.Context, menuID int64, name string, orderNum int) (int64, error) {
	id, err := database.InsertedID(s.db.Run(ctx,
		"INSERT INTO sub_menus (menu_id, name, order_num) VALUES (?, ?, ?)", menuID, name, orderNum))
	if err != nil {
		return 0, fmt.Errorf("failed to create sub-menu: %w", err)
	}
	return id, nil
}

// UpdateSubMenu renames or reorders a sub-menu
func (s *Store) UpdateSubMenu(ctx context.Context, id int64, name string, orderNum int) (int64, error) {
	res, err := s.db.Run(ctx, "UPDATE sub_menus SET name = ?, order_num = ? WHERE id = ?", name, orderNum, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update sub-menu: %w", err)
	}
	return res.RowsAffected, nil
}

// DeleteSubMenu removes a sub-menu and its cards
func (s *Store) DeleteSubMenu(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.Run(ctx, "DELETE FROM sub_menus WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sub-menu: %w", err)
	}
	return res.RowsAffected, nil
}

// sortTable is shared by every orderable table in this package.
func sortTable(ctx context.Context, db database.Transactor, table string, ids []int64) error {
	err := db.Transaction(ctx, func(ctx context.Context, q database.Querier) error {
		for i, id := range ids {
			if _, err := q.Run(ctx, "UPDATE "+table+" SET order_num = ? WHERE id = ?", i, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sort %s: %w", table, err)
	}
	return nil
}
