package database

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row keyed by column name. Text columns returned as bytes
// by the driver are converted to strings.
type Row map[string]any

// Int64 returns the column as an integer, or 0 when it is NULL or not numeric.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// String returns the column formatted as text, or "" when it is NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func normalizeRow(m map[string]any) Row {
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			m[k] = string(b)
		}
	}
	return Row(m)
}

// Result is the outcome of Run.
type Result struct {
	RowsAffected int64

	lastInsertID int64
	hasID        bool
}

// LastInsertID returns the id of the inserted row. It is present only after a
// single row insert into a table with a surrogate id.
func (r Result) LastInsertID() (int64, bool) {
	return r.lastInsertID, r.hasID
}

func resultWithID(affected, id int64) Result {
	return Result{RowsAffected: affected, lastInsertID: id, hasID: true}
}

// InsertedID unwraps the id of a Run that must have inserted exactly one row
// into a table with a surrogate id.
func InsertedID(res Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	id, ok := res.LastInsertID()
	if !ok {
		return 0, &DataAccessError{Err: errors.New("insert did not report an id")}
	}
	return id, nil
}
