package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/baswilson/navsite/internal/dialect"
)

// Sentinels for errors.Is matching. Every typed error below reports true for
// exactly one of the first five.
var (
	ErrConnection = errors.New("database connection error")
	ErrStatement  = errors.New("invalid statement")
	ErrConstraint = errors.New("constraint violation")
	ErrNotFound   = errors.New("not found")
	ErrDataAccess = errors.New("data access error")

	// ErrClosed is returned by every Store method after Close.
	ErrClosed = errors.New("store is closed")
	// ErrNestedTransaction is returned when Transaction is called with a
	// context that already carries a transaction.
	ErrNestedTransaction = errors.New("nested transactions are not supported")
)

// ConnectionError means the engine could not be reached or the connection was
// lost, including a caller deadline expiring mid statement.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error        { return e.Err }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// StatementError means the statement was malformed, did not match its
// parameters, or is incompatible with the engine.
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed: %v [%s]", e.Err, abbreviate(e.SQL))
}

func (e *StatementError) Unwrap() error        { return e.Err }
func (e *StatementError) Is(target error) bool { return target == ErrStatement }

// ConstraintError is a uniqueness, foreign key, not null or check violation.
type ConstraintError struct {
	SQL string
	Err error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation: %v", e.Err)
}

func (e *ConstraintError) Unwrap() error        { return e.Err }
func (e *ConstraintError) Is(target error) bool { return target == ErrConstraint }

// NotFoundError is produced by lookup helpers such as First, never by Query or Run.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	if e.Key == nil {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %v not found", e.Entity, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DataAccessError means the insert id fallback was exhausted.
type DataAccessError struct {
	SQL string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access failed: %v [%s]", e.Err, abbreviate(e.SQL))
}

func (e *DataAccessError) Unwrap() error        { return e.Err }
func (e *DataAccessError) Is(target error) bool { return target == ErrDataAccess }

// ErrorClass is a driver's verdict on an engine error.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassConnection
	ClassStatement
	ClassConstraint
)

// classify converts err into the taxonomy. Errors that already belong to it
// pass through unchanged.
func classify(d Driver, op, query string, err error) error {
	if err == nil || isTyped(err) {
		return err
	}

	switch {
	case errors.Is(err, dialect.ErrParamCount), errors.Is(err, dialect.ErrEmptyStatement):
		return &StatementError{SQL: query, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return &ConnectionError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ConnectionError{Op: op, Err: err}
	}

	if d != nil {
		switch d.Classify(err) {
		case ClassConnection:
			return &ConnectionError{Op: op, Err: err}
		case ClassConstraint:
			return &ConstraintError{SQL: query, Err: err}
		}
	}
	return &StatementError{SQL: query, Err: err}
}

func isTyped(err error) bool {
	var (
		ce *ConnectionError
		se *StatementError
		ke *ConstraintError
		ne *NotFoundError
		de *DataAccessError
	)
	return errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &ke) ||
		errors.As(err, &ne) || errors.As(err, &de) ||
		errors.Is(err, ErrClosed) || errors.Is(err, ErrNestedTransaction)
}

func abbreviate(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 120 {
		return q[:117] + "..."
	}
	return q
}
