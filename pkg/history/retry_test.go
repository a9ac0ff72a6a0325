package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, want: true},
		{name: "query cancelled", err: &pgconn.PgError{Code: "57014"}, want: true},
		{name: "connection exception class", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "unique violation is permanent", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "syntax error is permanent", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "wrapped pg error", err: fmt.Errorf("saving: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "sqlite busy", err: errors.New("database is locked"), want: true},
		{name: "sqlite table locked", err: errors.New("database table is locked"), want: true},
		{name: "sqlite corrupt page read", err: errors.New("database disk image is malformed"), want: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "connection closed", err: errors.New("conn closed: unexpected EOF on connection closed"), want: true},
		{name: "pool exhausted", err: errors.New("timed out waiting for connection pool"), want: true},
		{name: "broken pipe", err: errors.New("write: broken pipe"), want: true},
		{name: "bad connection", err: errors.New("driver: bad connection"), want: true},
		{name: "plain error is permanent", err: errors.New("no such column"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
