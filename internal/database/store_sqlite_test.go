package database

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore(
		Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "data", "nav.db")},
		WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
	)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type menuRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	OrderNum int    `db:"order_num"`
	IsPublic int    `db:"is_public"`
}

func countRows(t *testing.T, q Querier, table string) int64 {
	t.Helper()
	row, ok, err := q.Get(context.Background(), "SELECT COUNT(*) AS count FROM "+table)
	require.NoError(t, err)
	require.True(t, ok)
	return row.Int64("count")
}

func TestSQLite_InsertIDMatchesPersistedRow(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for _, name := range []string{"Home", "Work", "Tools"} {
		res, err := s.Run(ctx, "INSERT INTO menus (name, order_num) VALUES (?, ?)", name, 1)
		require.NoError(t, err)

		id, ok := res.LastInsertID()
		require.True(t, ok)
		assert.Equal(t, int64(1), res.RowsAffected)

		row, found, err := s.Get(ctx, "SELECT id, name FROM menus WHERE id = ?", id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, name, row.String("name"))
	}
}

func TestSQLite_ConfigsInsertHasNoID(t *testing.T) {
	s := newSQLiteStore(t)

	res, err := s.Run(context.Background(), "INSERT INTO configs (key, value) VALUES (?, ?)", "site.title", "Nav")
	require.NoError(t, err)

	_, ok := res.LastInsertID()
	assert.False(t, ok)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestSQLite_ExplicitReturningOnConfigsFallsBack(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	res, err := s.Run(ctx, "INSERT INTO configs (key, value) VALUES (?, ?) RETURNING id", "site.name", "Nav")
	require.NoError(t, err)
	_, ok := res.LastInsertID()
	assert.False(t, ok)
	assert.Equal(t, int64(1), res.RowsAffected)

	row, found, err := s.Get(ctx, "SELECT value FROM configs WHERE key = ?", "site.name")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Nav", row.String("value"))
}

func TestSQLite_UpdateHasNoID(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Home")
	require.NoError(t, err)

	res, err := s.Run(ctx, "UPDATE menus SET name = ? WHERE name = ?", "Start", "Home")
	require.NoError(t, err)
	_, ok := res.LastInsertID()
	assert.False(t, ok)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestSQLite_ConstraintError(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.Run(ctx, "INSERT INTO users (username, password) VALUES (?, ?)", "admin", "x")
	require.NoError(t, err)

	_, err = s.Run(ctx, "INSERT INTO users (username, password) VALUES (?, ?)", "admin", "y")
	require.Error(t, err)

	var ce *ConstraintError
	assert.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrConstraint)

	_, err = s.Run(ctx, "INSERT INTO cards (menu_id, title, url) VALUES (?, ?, ?)", 999, "x", "https://x")
	assert.ErrorIs(t, err, ErrConstraint, "foreign keys are enforced")
}

func TestSQLite_StatementError(t *testing.T) {
	s := newSQLiteStore(t)

	_, err := s.Query(context.Background(), "SELECT nope FROM menus")
	assert.ErrorIs(t, err, ErrStatement)
}

func TestSQLite_TransactionRollbackLeavesStoreUnchanged(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Home")
	require.NoError(t, err)
	before, err := s.Query(ctx, "SELECT * FROM menus ORDER BY id")
	require.NoError(t, err)

	workErr := errors.New("abort")
	err = s.Transaction(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Temp"); err != nil {
			return err
		}
		if _, err := q.Run(ctx, "UPDATE menus SET name = ? WHERE name = ?", "Changed", "Home"); err != nil {
			return err
		}
		assert.Equal(t, int64(2), countRows(t, q, "menus"))
		return workErr
	})
	assert.ErrorIs(t, err, workErr)

	after, err := s.Query(ctx, "SELECT * FROM menus ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSQLite_TransactionCommit(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(ctx context.Context, q Querier) error {
		res, err := q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Home")
		if err != nil {
			return err
		}
		menuID, _ := res.LastInsertID()

		// the store itself joins the transaction through ctx
		_, err = s.Run(ctx, `INSERT INTO cards (menu_id, title, url, "desc") VALUES (?, ?, ?, ?)`,
			menuID, "Google", "https://www.google.com", "search")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, s, "menus"))
	assert.Equal(t, int64(1), countRows(t, s, "cards"))
}

// assertReaderSeesAllOrNothing runs a reader while a transaction sits between
// its two inserts. The reader must see neither row or both.
func assertReaderSeesAllOrNothing(t *testing.T, s *Store, name string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	t.Cleanup(func() { _, _ = s.Run(context.Background(), "DELETE FROM menus WHERE name = ?", name) })

	between := make(chan struct{})
	seen := make(chan int64, 1)
	readErr := make(chan error, 1)
	go func() {
		<-between
		row, _, err := s.Get(ctx, "SELECT COUNT(*) AS count FROM menus WHERE name = ?", name)
		if err != nil {
			readErr <- err
			return
		}
		seen <- row.Int64("count")
	}()

	err := s.Transaction(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", name); err != nil {
			return err
		}
		close(between)
		// let the reader issue its query while only one row exists
		time.Sleep(100 * time.Millisecond)
		_, err := q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", name)
		return err
	})
	require.NoError(t, err)

	select {
	case n := <-seen:
		assert.Contains(t, []int64{0, 2}, n)
	case err := <-readErr:
		t.Fatalf("reader failed: %v", err)
	case <-ctx.Done():
		t.Fatal("reader did not finish")
	}
}

func TestSQLite_ConcurrentReaderSeesAllOrNothing(t *testing.T) {
	assertReaderSeesAllOrNothing(t, newSQLiteStore(t), "atomic")
}

func TestSQLite_UpsertReportsAffectedRowID(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := s.Run(ctx, "INSERT INTO menus (name) VALUES (?)", name)
		require.NoError(t, err)
	}

	upsert := "INSERT INTO menus (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name"
	res, err := s.Run(ctx, upsert, 1, "a2")
	require.NoError(t, err)
	id, ok := res.LastInsertID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int64(1), res.RowsAffected)

	row, _, err := s.Get(ctx, "SELECT name FROM menus WHERE id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, "a2", row.String("name"))

	res, err = s.Run(ctx, "INSERT OR REPLACE INTO menus (id, name) VALUES (?, ?)", 2, "b2")
	require.NoError(t, err)
	id, ok = res.LastInsertID()
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	res, err = s.Run(ctx, "INSERT INTO menus (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING", 1, "ignored")
	require.NoError(t, err)
	_, ok = res.LastInsertID()
	assert.False(t, ok)
	assert.Zero(t, res.RowsAffected)
}

func TestSQLite_TransactionCancelledDuringWork(t *testing.T) {
	var logs bytes.Buffer
	s := NewStore(
		Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "nav.db")},
		WithLogger(zerolog.New(&logs)),
	)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Transaction(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Temp"); err != nil {
			return err
		}
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, logs.String(), "failed to roll back")
	assert.Equal(t, int64(0), countRows(t, s, "menus"))
}

func TestSQLite_TransactionOnOuterContextWaits(t *testing.T) {
	s := newSQLiteStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := s.Transaction(ctx, func(txCtx context.Context, q Querier) error {
		assert.ErrorIs(t, s.Transaction(txCtx, func(context.Context, Querier) error { return nil }), ErrNestedTransaction)
		// the outer ctx does not carry the transaction and waits for the
		// connection the transaction holds
		_, err := s.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "outside")
		return err
	})
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSQLite_TransactionPanicRollsBack(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.Transaction(ctx, func(ctx context.Context, q Querier) error {
			_, _ = q.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Temp")
			panic("boom")
		})
	})
	assert.Equal(t, int64(0), countRows(t, s, "menus"))
}

func TestSQLite_SelectFindFirst(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for i, name := range []string{"B", "A"} {
		_, err := s.Run(ctx, "INSERT INTO menus (name, order_num) VALUES (?, ?)", name, i)
		require.NoError(t, err)
	}

	menus := []menuRow{}
	require.NoError(t, s.Select(ctx, &menus, "SELECT id, name, order_num, is_public FROM menus ORDER BY name"))
	require.Len(t, menus, 2)
	assert.Equal(t, "A", menus[0].Name)
	assert.Equal(t, 1, menus[0].IsPublic)

	var m menuRow
	found, err := s.Find(ctx, &m, "SELECT id, name, order_num, is_public FROM menus WHERE name = ?", "B")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, m.OrderNum)

	found, err = s.Find(ctx, &m, "SELECT id, name, order_num, is_public FROM menus WHERE name = ?", "Z")
	require.NoError(t, err)
	assert.False(t, found)

	err = First(ctx, s, &m, "menu", "SELECT id, name, order_num, is_public FROM menus WHERE id = ?", 42)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "menu", nf.Entity)
	assert.Equal(t, 42, nf.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_InitIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Home")
	require.NoError(t, err)

	schemaBefore, err := s.Query(ctx, "SELECT type, name, sql FROM sqlite_master ORDER BY name")
	require.NoError(t, err)

	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx))

	schemaAfter, err := s.Query(ctx, "SELECT type, name, sql FROM sqlite_master ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, schemaBefore, schemaAfter)
	assert.Equal(t, int64(1), countRows(t, s, "menus"))
}

func TestSQLite_ReconcilesLateColumns(t *testing.T) {
	ctx := context.Background()
	s := NewStore(
		Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "old.db")},
		WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
	)
	t.Cleanup(func() { _ = s.Close() })

	// a database created by an early release
	require.NoError(t, s.connect(ctx))
	_, err := s.Run(ctx, "CREATE TABLE menus (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, created_at DATETIME DEFAULT CURRENT_TIMESTAMP)")
	require.NoError(t, err)
	_, err = s.Run(ctx, "INSERT INTO menus (name) VALUES (?)", "Legacy")
	require.NoError(t, err)

	b := NewBootstrapper(s, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, b.Run(ctx))
	assert.Equal(t, StateReady, b.State())
	assert.Empty(t, b.Skipped)

	row, found, err := s.Get(ctx, "SELECT name, order_num, is_public FROM menus WHERE name = ?", "Legacy")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(0), row.Int64("order_num"))
	assert.Equal(t, int64(1), row.Int64("is_public"))

	// a second run has nothing to add
	require.NoError(t, b.Run(ctx))
	assert.Empty(t, b.Skipped)
}

func TestSQLite_InMemory(t *testing.T) {
	s := NewStore(Config{Type: "sqlite", SQLitePath: ":memory:"})
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	defer s.Close()

	res, err := s.Run(ctx, "INSERT INTO ads (title) VALUES (?)", "banner")
	require.NoError(t, err)
	_, ok := res.LastInsertID()
	assert.True(t, ok)
	assert.NoError(t, s.Ping(ctx))
}
