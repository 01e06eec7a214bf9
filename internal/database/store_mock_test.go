package database

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/baswilson/navsite/internal/dialect"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDriver speaks the postgres dialect over sqlmock.
type mockDriver struct {
	db *sqlx.DB
}

func (d *mockDriver) DB() *sqlx.DB                  { return d.db }
func (d *mockDriver) Close() error                  { return d.db.Close() }
func (d *mockDriver) Type() string                  { return "postgres" }
func (d *mockDriver) Dialect() dialect.Name         { return dialect.Postgres }
func (d *mockDriver) Classify(err error) ErrorClass { return classifyPostgres(err) }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	s := NewStore(
		Config{Type: "postgres", RetryBaseDelay: time.Millisecond},
		WithDriver(&mockDriver{db: sqlx.NewDb(db, "pgx")}),
		WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
	)
	require.NoError(t, s.connect(context.Background()))

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return s, mock
}

func connReset() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
}

func TestStore_RunInsertReturningID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO menus (name, order_num) VALUES ($1, $2) RETURNING id").
		WithArgs("Home", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	res, err := s.Run(context.Background(), "INSERT INTO menus (name, order_num) VALUES (?, ?)", "Home", 1)
	require.NoError(t, err)

	id, ok := res.LastInsertID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestStore_RunInsertIntoConfigsHasNoID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO configs (key, value) VALUES ($1, $2)").
		WithArgs("site.title", "Nav").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := s.Run(context.Background(), "INSERT INTO configs (key, value) VALUES (?, ?)", "site.title", "Nav")
	require.NoError(t, err)

	_, ok := res.LastInsertID()
	assert.False(t, ok)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestStore_RunReturningFallback(t *testing.T) {
	missingID := &pgconn.PgError{Code: "42703", Message: `column "id" does not exist`}

	t.Run("retried once without the clause", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO configs (key, value) VALUES ($1, $2) RETURNING id").
			WithArgs("k", "v").
			WillReturnError(missingID)
		mock.ExpectExec("INSERT INTO configs (key, value) VALUES ($1, $2)").
			WithArgs("k", "v").
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := s.Run(context.Background(), "INSERT INTO configs (key, value) VALUES (?, ?) RETURNING id", "k", "v")
		require.NoError(t, err)
		_, ok := res.LastInsertID()
		assert.False(t, ok)
		assert.Equal(t, int64(1), res.RowsAffected)
	})

	t.Run("second failure is a data access error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO configs (key, value) VALUES ($1, $2) RETURNING id").
			WillReturnError(missingID)
		mock.ExpectExec("INSERT INTO configs (key, value) VALUES ($1, $2)").
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "configs" does not exist`})

		_, err := s.Run(context.Background(), "INSERT INTO configs (key, value) VALUES (?, ?) RETURNING id", "k", "v")
		require.Error(t, err)

		var dae *DataAccessError
		assert.ErrorAs(t, err, &dae)
		assert.ErrorIs(t, err, ErrDataAccess)
	})

	t.Run("constraint violation is not retried", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO configs (key, value) VALUES ($1, $2) RETURNING id").
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

		_, err := s.Run(context.Background(), "INSERT INTO configs (key, value) VALUES (?, ?) RETURNING id", "k", "v")
		assert.ErrorIs(t, err, ErrConstraint)
	})
}

func TestStore_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrConstraint},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrConstraint},
		{"syntax error", &pgconn.PgError{Code: "42601"}, ErrStatement},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrConnection},
		{"network", connReset(), ErrConnection},
		{"deadline", context.DeadlineExceeded, ErrConnection},
		{"unknown", errors.New("boom"), ErrStatement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec("UPDATE users SET username = $1 WHERE id = $2").WillReturnError(tt.err)

			_, err := s.Run(context.Background(), "UPDATE users SET username = ? WHERE id = ?", "a", 1)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestStore_ParamCountMismatch(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.Run(context.Background(), "INSERT INTO menus (name, order_num) VALUES (?, ?)", "Home")
	require.Error(t, err)

	var se *StatementError
	assert.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, dialect.ErrParamCount)

	_, err = s.Query(context.Background(), "SELECT * FROM menus", 1)
	assert.ErrorIs(t, err, ErrStatement)
}

func TestStore_QueryRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name FROM menus WHERE is_public = $1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("Home")).
			AddRow(int64(2), "Work"))
	mock.ExpectQuery("SELECT id FROM menus WHERE id = $1").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := s.Query(context.Background(), "SELECT id, name FROM menus WHERE is_public = ?", 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Home", rows[0]["name"])
	assert.Equal(t, int64(2), rows[1].Int64("id"))

	rows, err = s.Query(context.Background(), "SELECT id FROM menus WHERE id = ?", 99)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestStore_ReadRetry(t *testing.T) {
	t.Run("recovers after a connection error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id FROM menus").WillReturnError(connReset())
		mock.ExpectQuery("SELECT id FROM menus").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		rows, err := s.Query(context.Background(), "SELECT id FROM menus")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		s, mock := newMockStore(t)
		for i := 0; i < 4; i++ {
			mock.ExpectQuery("SELECT id FROM menus").WillReturnError(connReset())
		}

		_, err := s.Query(context.Background(), "SELECT id FROM menus")
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("statement errors are not retried", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT nope FROM menus").
			WillReturnError(&pgconn.PgError{Code: "42703"})

		_, err := s.Query(context.Background(), "SELECT nope FROM menus")
		assert.ErrorIs(t, err, ErrStatement)
	})

	t.Run("writes are not retried", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM menus WHERE id = $1").WillReturnError(connReset())

		_, err := s.Run(context.Background(), "DELETE FROM menus WHERE id = ?", 1)
		assert.ErrorIs(t, err, ErrConnection)
	})
}

func TestStore_Transaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO menus (name) VALUES ($1) RETURNING id").
			WithArgs("Home").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
		mock.ExpectQuery("INSERT INTO cards (menu_id, title, url) VALUES ($1, $2, $3) RETURNING id").
			WithArgs(int64(3), "Google", "https://www.google.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
		mock.ExpectCommit()

		err := s.Transaction(ctx, func(ctx context.Context, q Querier) error {
			res, err := q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Home")
			if err != nil {
				return err
			}
			menuID, ok := res.LastInsertID()
			require.True(t, ok)
			_, err = q.Run(ctx, "INSERT INTO cards (menu_id, title, url) VALUES (?, ?, ?)",
				menuID, "Google", "https://www.google.com")
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE menus SET order_num = $1 WHERE id = $2").
			WithArgs(2, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		workErr := errors.New("stop")
		err := s.Transaction(ctx, func(ctx context.Context, q Querier) error {
			if _, err := q.Run(ctx, "UPDATE menus SET order_num = ? WHERE id = ?", 2, 1); err != nil {
				return err
			}
			return workErr
		})
		assert.ErrorIs(t, err, workErr)
	})

	t.Run("rollback on panic", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "boom", func() {
			_ = s.Transaction(ctx, func(ctx context.Context, q Querier) error {
				panic("boom")
			})
		})
	})

	t.Run("store calls join the transaction", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM ads WHERE id = $1").WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.Transaction(ctx, func(ctx context.Context, _ Querier) error {
			_, err := s.Run(ctx, "DELETE FROM ads WHERE id = ?", 4)
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("nested transaction rejected", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := s.Transaction(ctx, func(ctx context.Context, _ Querier) error {
			return s.Transaction(ctx, func(context.Context, Querier) error { return nil })
		})
		assert.ErrorIs(t, err, ErrNestedTransaction)
	})

	t.Run("commit failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(connReset())

		err := s.Transaction(ctx, func(context.Context, Querier) error { return nil })
		assert.ErrorIs(t, err, ErrConnection)
	})
}

func TestStore_Closed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectClose()

	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.Get(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Run(ctx, "DELETE FROM ads")
	assert.ErrorIs(t, err, ErrClosed)
	err = s.Transaction(ctx, func(context.Context, Querier) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Init(ctx), ErrClosed)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

func TestStore_NotInitialized(t *testing.T) {
	s := NewStore(Config{Type: "sqlite"})
	_, err := s.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBootstrapper_TableFailureIsFatal(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(translated(t, Tables[0].DDL)).WillReturnError(connReset())

	b := NewBootstrapper(s, zerolog.Nop())
	err := b.Run(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, StateUnchecked, b.State())
}

func translated(t *testing.T, tmpl string) string {
	t.Helper()
	stmt, err := dialect.Translate(tmpl, dialect.Postgres)
	require.NoError(t, err)
	return stmt.SQL
}
