package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Transactor is a Querier that can also open transactions. *Store is the
// production implementation.
type Transactor interface {
	Querier
	Transaction(ctx context.Context, work func(ctx context.Context, q Querier) error) error
}

// Tx is a Querier bound to one open transaction. It is only valid inside the
// work function passed to Store.Transaction.
type Tx struct {
	store *Store
	tx    *sqlx.Tx
}

func txFromContext(ctx context.Context, s *Store) *Tx {
	tx, _ := ctx.Value(txKey{}).(*Tx)
	if tx == nil || tx.store != s {
		return nil
	}
	return tx
}

func (t *Tx) bind(ctx context.Context) context.Context {
	if txFromContext(ctx, t.store) == t {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, t)
}

// Query runs template inside the transaction.
func (t *Tx) Query(ctx context.Context, template string, args ...any) ([]Row, error) {
	return t.store.Query(t.bind(ctx), template, args...)
}

// Get runs template inside the transaction and returns the first row.
func (t *Tx) Get(ctx context.Context, template string, args ...any) (Row, bool, error) {
	return t.store.Get(t.bind(ctx), template, args...)
}

// Select scans all rows into dest inside the transaction.
func (t *Tx) Select(ctx context.Context, dest any, template string, args ...any) error {
	return t.store.Select(t.bind(ctx), dest, template, args...)
}

// Find scans the first row into dest inside the transaction.
func (t *Tx) Find(ctx context.Context, dest any, template string, args ...any) (bool, error) {
	return t.store.Find(t.bind(ctx), dest, template, args...)
}

// Run executes a write inside the transaction.
func (t *Tx) Run(ctx context.Context, template string, args ...any) (Result, error) {
	return t.store.Run(t.bind(ctx), template, args...)
}

// Transaction runs work on a single connection. The transaction commits when
// work returns nil and rolls back when it returns an error or panics; a panic
// is re-raised after the rollback.
//
// Store methods called with the ctx handed to work join the transaction.
// Calling Transaction again with that ctx returns ErrNestedTransaction.
//
// Nesting is detected through ctx only. Work that calls the store with the
// outer ctx runs outside the transaction: on PostgreSQL it takes another pool
// connection, and on SQLite, whose only connection the transaction holds, it
// deadlocks until the outer ctx expires.
func (s *Store) Transaction(ctx context.Context, work func(ctx context.Context, q Querier) error) (err error) {
	if txFromContext(ctx, s) != nil {
		return ErrNestedTransaction
	}

	ss, err := s.session(ctx)
	if err != nil {
		return err
	}
	dialectName := string(ss.driver.Dialect())

	sqlTx, err := ss.driver.DB().BeginTxx(ctx, nil)
	if err != nil {
		return classify(ss.driver, "begin", "BEGIN", err)
	}

	tx := &Tx{store: s, tx: sqlTx}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				s.log.Error().Err(rbErr).Msg("failed to roll back transaction after panic")
			}
			transactionsTotal.WithLabelValues(dialectName, "rollback").Inc()
			panic(p)
		}
	}()

	if err := work(txCtx, tx); err != nil {
		// a cancelled ctx has already rolled the transaction back
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("failed to roll back transaction")
		}
		transactionsTotal.WithLabelValues(dialectName, "rollback").Inc()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		transactionsTotal.WithLabelValues(dialectName, "rollback").Inc()
		return classify(ss.driver, "commit", "COMMIT", err)
	}
	transactionsTotal.WithLabelValues(dialectName, "commit").Inc()
	return nil
}
