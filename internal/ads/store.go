// Package ads persists advertisement slots shown on the navigation page.
package ads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baswilson/navsite/internal/database"
)

// ErrNoChanges is returned by Update when the patch sets nothing.
var ErrNoChanges = errors.New("no fields to update")

// Ad is one advertisement
type Ad struct {
	ID        int64     `db:"id" json:"id"`
	Position  string    `db:"position" json:"position"`
	Img       string    `db:"img" json:"img"`
	URL       string    `db:"url" json:"url"`
	Title     string    `db:"title" json:"title"`
	OrderNum  int       `db:"order_num" json:"order_num"`
	IsActive  int       `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Patch holds optional fields; nil fields are left untouched
type Patch struct {
	Position *string `json:"position"`
	Img      *string `json:"img"`
	URL      *string `json:"url"`
	Title    *string `json:"title"`
	OrderNum *int    `json:"order_num"`
	IsActive *int    `json:"is_active"`
}

// Page is one page of a paginated listing
type Page struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
	Data       []Ad  `json:"data"`
}

// PositionCount is the number of ads in one position
type PositionCount struct {
	Position string `db:"position" json:"position"`
	Count    int64  `db:"count" json:"count"`
}

// Stats summarizes all ads
type Stats struct {
	TotalAds    int64           `json:"total_ads"`
	ActiveAds   int64           `json:"active_ads"`
	InactiveAds int64           `json:"inactive_ads"`
	ByPosition  []PositionCount `json:"ads_by_position"`
}

// Store handles ad persistence
type Store struct {
	db database.Transactor
}

// NewStore creates a new ad store
func NewStore(db database.Transactor) *Store {
	return &Store{db: db}
}

const adColumns = "id, COALESCE(position, '') AS position, COALESCE(img, '') AS img, COALESCE(url, '') AS url, " +
	"COALESCE(title, '') AS title, COALESCE(order_num, 0) AS order_num, COALESCE(is_active, 1) AS is_active, created_at"

// List returns all ads, optionally limited to one position
func (s *Store) List(ctx context.Context, position string) ([]Ad, error) {
	ads := []Ad{}
	var err error
	if position != "" {
		err = s.db.Select(ctx, &ads, "SELECT "+adColumns+" FROM ads WHERE position = ? ORDER BY order_num, id", position)
	} else {
		err = s.db.Select(ctx, &ads, "SELECT "+adColumns+" FROM ads ORDER BY order_num, id")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}
	return ads, nil
}

// ListPage returns one page of ads. page starts at 1.
func (s *Store) ListPage(ctx context.Context, position string, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	where, args := "", []any{}
	if position != "" {
		where, args = " WHERE position = ?", []any{position}
	}

	row, _, err := s.db.Get(ctx, "SELECT COUNT(*) AS total FROM ads"+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count ads: %w", err)
	}
	total := row.Int64("total")

	ads := []Ad{}
	err = s.db.Select(ctx, &ads, "SELECT "+adColumns+" FROM ads"+where+" ORDER BY order_num, id LIMIT ? OFFSET ?",
		append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}

	return &Page{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		Data:       ads,
	}, nil
}

// ListActive returns the enabled ads of a position
func (s *Store) ListActive(ctx context.Context, position string) ([]Ad, error) {
	ads := []Ad{}
	err := s.db.Select(ctx, &ads, "SELECT "+adColumns+" FROM ads WHERE position = ? AND is_active = 1 ORDER BY order_num, id", position)
	if err != nil {
		return nil, fmt.Errorf("failed to list active ads: %w", err)
	}
	return ads, nil
}

// Get returns one ad
func (s *Store) Get(ctx context.Context, id int64) (*Ad, error) {
	ad := &Ad{}
	if err := database.First(ctx, s.db, ad, "ad", "SELECT "+adColumns+" FROM ads WHERE id = ?", id); err != nil {
		return nil, err
	}
	return ad, nil
}

// Create inserts an ad. Without an explicit order it goes last in its position.
func (s *Store) Create(ctx context.Context, p Patch) (*Ad, error) {
	position, img, url := deref(p.Position), deref(p.Img), deref(p.URL)

	var orderNum int
	if p.OrderNum != nil {
		orderNum = *p.OrderNum
	} else {
		row, _, err := s.db.Get(ctx, "SELECT COALESCE(MAX(order_num), 0) AS max_order FROM ads WHERE position = ?", position)
		if err != nil {
			return nil, fmt.Errorf("failed to read ad order: %w", err)
		}
		orderNum = int(row.Int64("max_order")) + 1
	}
	isActive := 1
	if p.IsActive != nil {
		isActive = *p.IsActive
	}

	id, err := database.InsertedID(s.db.Run(ctx,
		"INSERT INTO ads (position, img, url, title, order_num, is_active) VALUES (?, ?, ?, ?, ?, ?)",
		position, img, url, deref(p.Title), orderNum, isActive))
	if err != nil {
		return nil, fmt.Errorf("failed to create ad: %w", err)
	}
	return s.Get(ctx, id)
}

// Update applies the non-nil fields of p
func (s *Store) Update(ctx context.Context, id int64, p Patch) (*Ad, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Position != nil {
		add("position", *p.Position)
	}
	if p.Img != nil {
		add("img", *p.Img)
	}
	if p.URL != nil {
		add("url", *p.URL)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.OrderNum != nil {
		add("order_num", *p.OrderNum)
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}
	if len(sets) == 0 {
		return nil, ErrNoChanges
	}

	args = append(args, id)
	if _, err := s.db.Run(ctx, "UPDATE ads SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return nil, fmt.Errorf("failed to update ad: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes an ad and returns what was removed
func (s *Store) Delete(ctx context.Context, id int64) (*Ad, error) {
	ad, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Run(ctx, "DELETE FROM ads WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to delete ad: %w", err)
	}
	return ad, nil
}

// DeleteMany removes every listed ad in one transaction
func (s *Store) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	var deleted int64
	err := s.db.Transaction(ctx, func(ctx context.Context, q database.Querier) error {
		deleted = 0
		for _, id := range ids {
			res, err := q.Run(ctx, "DELETE FROM ads WHERE id = ?", id)
			if err != nil {
				return err
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete ads: %w", err)
	}
	return deleted, nil
}

// Sort sets order_num to each id's position in ids, atomically
func (s *Store) Sort(ctx context.Context, ids []int64) error {
	err := s.db.Transaction(ctx, func(ctx context.Context, q database.Querier) error {
		for i, id := range ids {
			if _, err := q.Run(ctx, "UPDATE ads SET order_num = ? WHERE id = ?", i, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sort ads: %w", err)
	}
	return nil
}

// Toggle flips is_active and returns the new value
func (s *Store) Toggle(ctx context.Context, id int64) (int, error) {
	ad, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	next := 1
	if ad.IsActive == 1 {
		next = 0
	}
	if _, err := s.db.Run(ctx, "UPDATE ads SET is_active = ? WHERE id = ?", next, id); err != nil {
		return 0, fmt.Errorf("failed to toggle ad: %w", err)
	}
	return next, nil
}

// Clone copies an ad right after the original. The copy starts disabled.
func (s *Store) Clone(ctx context.Context, id int64) (*Ad, error) {
	orig, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	title := "Copy"
	if orig.Title != "" {
		title = orig.Title + " (copy)"
	}
	orderNum := orig.OrderNum + 1
	inactive := 0
	return s.Create(ctx, Patch{
		Position: &orig.Position,
		Img:      &orig.Img,
		URL:      &orig.URL,
		Title:    &title,
		OrderNum: &orderNum,
		IsActive: &inactive,
	})
}

// Stats counts ads overall, enabled, and per position
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	row, _, err := s.db.Get(ctx, "SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0) AS active FROM ads")
	if err != nil {
		return nil, fmt.Errorf("failed to count ads: %w", err)
	}

	byPosition := []PositionCount{}
	err = s.db.Select(ctx, &byPosition,
		"SELECT COALESCE(position, '') AS position, COUNT(*) AS count FROM ads GROUP BY position ORDER BY count DESC, position")
	if err != nil {
		return nil, fmt.Errorf("failed to count ads by position: %w", err)
	}

	total, active := row.Int64("total"), row.Int64("active")
	return &Stats{
		TotalAds:    total,
		ActiveAds:   active,
		InactiveAds: total - active,
		ByPosition:  byPosition,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
