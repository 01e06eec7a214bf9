package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/baswilson/navsite/internal/dialect"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// ErrNotInitialized is returned when the store is used before Init.
var ErrNotInitialized = errors.New("store is not initialized")

// Querier is the persistence API handed to business code. Store and Tx both
// implement it; templates are written once in the dialect-agnostic form
// ("?" placeholders, ANSI quoted identifiers).
type Querier interface {
	// Query returns every row, or an empty slice.
	Query(ctx context.Context, template string, args ...any) ([]Row, error)
	// Get returns the first row and whether there was one.
	Get(ctx context.Context, template string, args ...any) (Row, bool, error)
	// Select scans all rows into dest, a pointer to a slice.
	Select(ctx context.Context, dest any, template string, args ...any) error
	// Find scans the first row into dest and reports whether there was one.
	Find(ctx context.Context, dest any, template string, args ...any) (bool, error)
	// Run executes a write or DDL statement.
	Run(ctx context.Context, template string, args ...any) (Result, error)
}

// Store is the single entry point to the database. It is created by the
// process entry point and injected into everything that persists data.
type Store struct {
	cfg  Config
	log  zerolog.Logger
	open func(context.Context, Config) (Driver, error)

	mu     sync.RWMutex
	driver Driver
	tr     dialect.Translator
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.log = logger.With().Str("component", "database").Logger() }
}

// WithDriver makes Init use d instead of opening a connection from the config.
func WithDriver(d Driver) Option {
	return func(s *Store) {
		s.open = func(context.Context, Config) (Driver, error) { return d, nil }
	}
}

// NewStore creates a store. No connection is made until Init.
func NewStore(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg:  cfg.withDefaults(),
		log:  zerolog.Nop(),
		open: Open,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init connects on first use and brings the schema up to date. It is safe to
// call repeatedly and never drops data.
func (s *Store) Init(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	return NewBootstrapper(s, s.log).Run(ctx)
}

func (s *Store) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.driver != nil {
		return nil
	}

	d, err := s.open(ctx, s.cfg)
	if err != nil {
		if !isTyped(err) {
			err = &ConnectionError{Op: "open", Err: err}
		}
		return err
	}
	s.driver = d
	s.tr = dialect.Translator{Dialect: d.Dialect(), NoIDTables: s.cfg.NoIDTables}
	s.log.Info().Str("driver", d.Type()).Msg("database connected")
	return nil
}

// Close releases the connection. Every later call on the store returns ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Dialect returns the active dialect, or "" before Init.
func (s *Store) Dialect() dialect.Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.driver == nil {
		return ""
	}
	return s.driver.Dialect()
}

// Ping checks that the engine is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ss, err := s.session(ctx)
	if err != nil {
		return err
	}
	return classify(ss.driver, "ping", "", ss.driver.DB().PingContext(ctx))
}

// session is what one statement runs against: the pool, or the transaction
// carried by ctx.
type session struct {
	driver Driver
	tr     dialect.Translator
	ext    sqlx.ExtContext
	inTx   bool
}

func (s *Store) session(ctx context.Context) (session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return session{}, ErrClosed
	}
	if s.driver == nil {
		return session{}, ErrNotInitialized
	}
	if tx := txFromContext(ctx, s); tx != nil {
		return session{driver: s.driver, tr: s.tr, ext: tx.tx, inTx: true}, nil
	}
	return session{driver: s.driver, tr: s.tr, ext: s.driver.DB()}, nil
}

type execFunc func(ctx context.Context, ss session, stmt dialect.Statement) error

// exec translates template, checks the argument count and runs fn, retrying
// reads on the pooled engine after connection errors.
func (s *Store) exec(ctx context.Context, template string, args []any, read bool, fn execFunc) error {
	ss, err := s.session(ctx)
	if err != nil {
		return err
	}

	stmt, err := ss.tr.Translate(template)
	if err != nil {
		return &StatementError{SQL: template, Err: err}
	}
	if err := stmt.CheckArgs(len(args)); err != nil {
		return &StatementError{SQL: template, Err: err}
	}

	op := stmt.Kind.String()
	attempt := func(ctx context.Context) error {
		return classify(ss.driver, op, stmt.SQL, fn(ctx, ss, stmt))
	}

	start := time.Now()
	if read && stmt.Kind == dialect.KindSelect && !ss.inTx && ss.driver.Dialect() == dialect.Postgres {
		err = s.retryRead(ctx, ss, op, attempt)
	} else {
		err = attempt(ctx)
	}
	observeStatement(string(ss.driver.Dialect()), op, err, time.Since(start))

	if err != nil {
		s.log.Debug().Err(err).Str("op", op).Str("sql", abbreviate(stmt.SQL)).Msg("statement failed")
	}
	return err
}

func (s *Store) retryRead(ctx context.Context, ss session, op string, attempt func(context.Context) error) error {
	backoff := retry.WithMaxRetries(s.cfg.RetryMax, retry.NewExponential(s.cfg.RetryBaseDelay))

	tries := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if tries > 0 {
			readRetriesTotal.WithLabelValues(string(ss.driver.Dialect())).Inc()
		}
		tries++

		err := attempt(ctx)
		if errors.Is(err, ErrConnection) && ctx.Err() == nil {
			s.log.Warn().Err(err).Int("attempt", tries).Msg("read failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	return classify(ss.driver, op, "", err)
}

// Query returns all rows produced by template. The result is never nil.
func (s *Store) Query(ctx context.Context, template string, args ...any) ([]Row, error) {
	rows := []Row{}
	err := s.exec(ctx, template, args, true, func(ctx context.Context, ss session, stmt dialect.Statement) error {
		rows = rows[:0]
		r, err := ss.ext.QueryxContext(ctx, stmt.SQL, args...)
		if err != nil {
			return err
		}
		defer r.Close()

		for r.Next() {
			m := make(map[string]any)
			if err := r.MapScan(m); err != nil {
				return err
			}
			rows = append(rows, normalizeRow(m))
		}
		return r.Err()
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns the first row produced by template.
func (s *Store) Get(ctx context.Context, template string, args ...any) (Row, bool, error) {
	rows, err := s.Query(ctx, template, args...)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

// Select scans all rows into dest, which must point to a slice.
func (s *Store) Select(ctx context.Context, dest any, template string, args ...any) error {
	return s.exec(ctx, template, args, true, func(ctx context.Context, ss session, stmt dialect.Statement) error {
		truncate(dest)
		return sqlx.SelectContext(ctx, ss.ext, dest, stmt.SQL, args...)
	})
}

// Find scans the first row into dest. A missing row is not an error.
func (s *Store) Find(ctx context.Context, dest any, template string, args ...any) (bool, error) {
	found := false
	err := s.exec(ctx, template, args, true, func(ctx context.Context, ss session, stmt dialect.Statement) error {
		err := sqlx.GetContext(ctx, ss.ext, dest, stmt.SQL, args...)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		found = err == nil
		return err
	})
	return found, err
}

// Run executes an INSERT, UPDATE, DELETE or DDL statement.
func (s *Store) Run(ctx context.Context, template string, args ...any) (Result, error) {
	var res Result
	err := s.exec(ctx, template, args, false, func(ctx context.Context, ss session, stmt dialect.Statement) error {
		var err error
		res, err = run(ctx, ss, stmt, args)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func run(ctx context.Context, ss session, stmt dialect.Statement, args []any) (Result, error) {
	switch stmt.IDMode {
	case dialect.IDFromReturning:
		res, err := execReturning(ctx, ss.ext, stmt.SQL, args)
		if err == nil || !stmt.NoIDTable {
			return res, err
		}
		// The caller asked for an id from a table that has none. Only a
		// statement error is worth one retry without the clause.
		if !errors.Is(classify(ss.driver, "insert", stmt.SQL, err), ErrStatement) {
			return res, err
		}
		stripped, ok := dialect.StripReturningID(stmt.SQL)
		if !ok {
			return Result{}, &DataAccessError{SQL: stmt.SQL, Err: err}
		}
		r, retryErr := ss.ext.ExecContext(ctx, stripped, args...)
		if retryErr != nil {
			return Result{}, &DataAccessError{SQL: stripped, Err: errors.Join(err, retryErr)}
		}
		n, _ := r.RowsAffected()
		return Result{RowsAffected: n}, nil

	case dialect.IDFromResult:
		r, err := ss.ext.ExecContext(ctx, stmt.SQL, args...)
		if err != nil {
			return Result{}, err
		}
		n, _ := r.RowsAffected()
		if n == 1 {
			if id, err := r.LastInsertId(); err == nil {
				return resultWithID(n, id), nil
			}
		}
		return Result{RowsAffected: n}, nil

	default:
		r, err := ss.ext.ExecContext(ctx, stmt.SQL, args...)
		if err != nil {
			return Result{}, err
		}
		n, _ := r.RowsAffected()
		return Result{RowsAffected: n}, nil
	}
}

// execReturning runs a statement with a RETURNING clause and reads the id
// column. The id is reported only when exactly one row came back.
func execReturning(ctx context.Context, ext sqlx.ExtContext, query string, args []any) (Result, error) {
	rows, err := ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	var (
		n     int64
		id    int64
		hasID bool
	)
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return Result{}, err
		}
		n++
		if v, ok := m["id"]; ok && v != nil {
			row := normalizeRow(m)
			id, hasID = row.Int64("id"), true
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	if n == 1 && hasID {
		return resultWithID(n, id), nil
	}
	return Result{RowsAffected: n}, nil
}

// truncate empties the slice dest points to, keeping it non-nil, so a retried
// Select does not append twice.
func truncate(dest any) {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v = v.Elem()
	if v.Kind() == reflect.Slice && !v.IsNil() {
		v.Set(v.Slice(0, 0))
	}
}

// First scans the first row into dest, returning a NotFoundError naming
// entity when there is none.
func First(ctx context.Context, q Querier, dest any, entity string, template string, args ...any) error {
	found, err := q.Find(ctx, dest, template, args...)
	if err != nil {
		return err
	}
	if !found {
		var key any
		switch len(args) {
		case 0:
		case 1:
			key = args[0]
		default:
			key = args
		}
		return &NotFoundError{Entity: entity, Key: key}
	}
	return nil
}
