// Package users persists accounts and checks their credentials.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/baswilson/navsite/internal/database"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidUsername    = errors.New("username must be at least 3 characters of letters, digits or underscores")
	ErrInvalidPassword    = errors.New("password must be at least 6 characters")
	ErrNoChanges          = errors.New("no fields to update")
)

// ActiveWindow is how recent a login must be for Stats to count the user as active.
const ActiveWindow = 30 * 24 * time.Hour

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,}$`)

// User is an account. The password hash never leaves the server.
type User struct {
	ID            int64      `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	PasswordHash  string     `db:"password" json:"-"`
	LastLoginTime *time.Time `db:"last_login_time" json:"last_login_time"`
	LastLoginIP   *string    `db:"last_login_ip" json:"last_login_ip"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Stats summarizes the accounts
type Stats struct {
	TotalUsers    int64 `json:"total_users"`
	ActiveUsers   int64 `json:"active_users_30d"`
	InactiveUsers int64 `json:"inactive_users"`
}

// Page is one page of a paginated listing
type Page struct {
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
	Data       []User `json:"data"`
}

// ValidateUsername checks the username rules
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword checks the password rules
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword hashes a password with bcrypt's default cost
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Store handles user persistence
type Store struct {
	db database.Transactor
}

// NewStore creates a new user store
func NewStore(db database.Transactor) *Store {
	return &Store{db: db}
}

const userColumns = "id, username, password, last_login_time, last_login_ip, created_at"

// Create validates and inserts a user. A taken username surfaces as a
// database.ConstraintError.
func (s *Store) Create(ctx context.Context, username, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	return s.create(ctx, username, password)
}

// CreateUnchecked inserts a user without applying the username and password
// rules. It is meant for operator supplied accounts.
func (s *Store) CreateUnchecked(ctx context.Context, username, password string) (*User, error) {
	return s.create(ctx, username, password)
}

func (s *Store) create(ctx context.Context, username, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := database.InsertedID(s.db.Run(ctx, "INSERT INTO users (username, password) VALUES (?, ?)", username, hash))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns a user
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	if err := database.First(ctx, s.db, u, "user", "SELECT "+userColumns+" FROM users WHERE id = ?", id); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByUsername returns a user
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	if err := database.First(ctx, s.db, u, "user", "SELECT "+userColumns+" FROM users WHERE username = ?", username); err != nil {
		return nil, err
	}
	return u, nil
}

// Exists reports whether username is taken
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	_, found, err := s.db.Get(ctx, "SELECT id FROM users WHERE username = ?", username)
	if err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return found, nil
}

// Authenticate checks credentials and records the login
func (s *Store) Authenticate(ctx context.Context, username, password, ip string) (*User, error) {
	u, err := s.GetByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := s.db.Run(ctx, "UPDATE users SET last_login_time = ?, last_login_ip = ? WHERE id = ?", now, ip, u.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	u.LastLoginTime = &now
	u.LastLoginIP = &ip
	return u, nil
}

// ChangePassword replaces the password after checking the current one
func (s *Store) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !u.CheckPassword(oldPassword) {
		return ErrWrongPassword
	}
	return setPassword(ctx, s.db, id, newPassword)
}

func setPassword(ctx context.Context, q database.Querier, id int64, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := q.Run(ctx, "UPDATE users SET password = ? WHERE id = ?", hash, id); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// List returns every user ordered by id
func (s *Store) List(ctx context.Context) ([]User, error) {
	users := []User{}
	if err := s.db.Select(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListPage returns one page of users. page starts at 1.
func (s *Store) ListPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	row, _, err := s.db.Get(ctx, "SELECT COUNT(*) AS total FROM users")
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	total := row.Int64("total")

	users := []User{}
	err = s.db.Select(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return &Page{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		Data:       users,
	}, nil
}

// Search returns users whose name contains keyword, ignoring ASCII case.
// LIKE wildcards in keyword match literally.
func (s *Store) Search(ctx context.Context, keyword string) ([]User, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
	users := []User{}
	err := s.db.Select(ctx, &users,
		"SELECT "+userColumns+` FROM users WHERE LOWER(username) LIKE ? ESCAPE '\' ORDER BY id`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

// Stats counts all users and those who logged in at or after activeSince
func (s *Store) Stats(ctx context.Context, activeSince time.Time) (*Stats, error) {
	row, _, err := s.db.Get(ctx, `SELECT COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN last_login_time >= ? THEN 1 ELSE 0 END), 0) AS active
		FROM users`, activeSince.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	total, active := row.Int64("total"), row.Int64("active")
	return &Stats{TotalUsers: total, ActiveUsers: active, InactiveUsers: total - active}, nil
}

// Update changes the username and/or password of a user
func (s *Store) Update(ctx context.Context, id int64, username, password *string) (*User, error) {
	if username == nil && password == nil {
		return nil, ErrNoChanges
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}

	err := s.db.Transaction(ctx, func(ctx context.Context, q database.Querier) error {
		if username != nil {
			name := strings.TrimSpace(*username)
			if err := ValidateUsername(name); err != nil {
				return err
			}
			if _, err := q.Run(ctx, "UPDATE users SET username = ? WHERE id = ?", name, id); err != nil {
				return err
			}
		}
		if password != nil {
			if err := ValidatePassword(*password); err != nil {
				return err
			}
			if err := setPassword(ctx, q, id, *password); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Delete removes a user
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.Run(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}
	return res.RowsAffected, nil
}

// DeleteMany removes every listed user in one transaction
func (s *Store) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	var deleted int64
	err := s.db.Transaction(ctx, func(ctx context.Context, q database.Querier) error {
		deleted = 0
		for _, id := range ids {
			res, err := q.Run(ctx, "DELETE FROM users WHERE id = ?", id)
			if err != nil {
				return err
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete users: %w", err)
	}
	return deleted, nil
}
