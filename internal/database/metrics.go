package database

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// statementsTotal counts executed statements by kind and outcome.
	statementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navsite_db_statements_total",
			Help: "Total number of SQL statements executed, by kind and outcome",
		},
		[]string{"dialect", "kind", "outcome"},
	)

	// statementDuration tracks statement latency including retries.
	statementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navsite_db_statement_duration_seconds",
			Help:    "SQL statement latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect", "kind"},
	)

	// transactionsTotal counts finished transactions by outcome.
	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navsite_db_transactions_total",
			Help: "Total number of transactions, by outcome (commit, rollback)",
		},
		[]string{"dialect", "outcome"},
	)

	// readRetriesTotal counts reads retried after a connection error.
	readRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navsite_db_read_retries_total",
			Help: "Total number of read retries after connection errors",
		},
		[]string{"dialect"},
	)
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConnection):
		return "connection_error"
	case errors.Is(err, ErrConstraint):
		return "constraint_error"
	case errors.Is(err, ErrDataAccess):
		return "data_access_error"
	default:
		return "statement_error"
	}
}

func observeStatement(dialect, kind string, err error, elapsed time.Duration) {
	statementsTotal.WithLabelValues(dialect, kind, outcome(err)).Inc()
	statementDuration.WithLabelValues(dialect, kind).Observe(elapsed.Seconds())
}
