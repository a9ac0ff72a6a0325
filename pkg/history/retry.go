package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

const maxWriteAttempts = 5

// withRetry runs op, retrying transient database failures with exponential
// backoff (100ms base, 2s cap, up to 5 attempts). Non-retryable errors are
// returned immediately.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxWriteAttempts-1), ctx))
}

// isRetryable classifies transient database errors worth retrying:
// serialization failures, deadlocks, lock contention, connection churn,
// and SQLite write contention.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"53300", // too_many_connections
			"57014": // query_canceled
			return true
		}
		// Class 08: connection exceptions
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		return false
	}

	msg := err.Error()
	// SQLite write contention surfaces as plain errors through database/sql
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "database disk image is malformed") {
		return true
	}
	// Driver-level connection failures
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"connection closed",
		"connection pool",
		"broken pipe",
		"bad connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
