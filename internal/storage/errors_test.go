package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnexpected},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, KindNotProvisioned},
		{"invalid schema", &pgconn.PgError{Code: "3F000"}, KindNotProvisioned},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindTransient},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, KindTransient},
		{"too many connections", &pgconn.PgError{Code: "53300"}, KindTransient},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, KindTransient},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, KindTransient},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, KindTransient},
		{"insufficient resources class", &pgconn.PgError{Code: "53100"}, KindTransient},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindUnexpected},
		{"syntax error", &pgconn.PgError{Code: "42601"}, KindUnexpected},
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindTransient},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), KindTransient},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "db.internal"}, KindTransient},
		{"connection refused", syscall.ECONNREFUSED, KindTransient},
		{"connection reset", syscall.ECONNRESET, KindTransient},
		{"closed pool string", errors.New("sql: database is closed"), KindTransient},
		{"plain error", errors.New("boom"), KindUnexpected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	err := NewError("token.lookup", &pgconn.PgError{Code: "42P01"})
	assert.Equal(t, KindNotProvisioned, KindOf(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindNotProvisioned, KindOf(wrapped))

	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.Equal(t, KindMalformed, KindOf(Malformed("token.revoke", "empty token")))
}

func TestErrorMessageCarriesOpAndKind(t *testing.T) {
	err := NewError("lockout.record", context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "lockout.record")
	assert.Contains(t, err.Error(), "transient")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
