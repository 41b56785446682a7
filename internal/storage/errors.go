package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a storage failure so callers can branch on a closed set
// instead of sniffing error strings.
type Kind int

const (
	// KindUnexpected covers everything the other kinds do not. Treated as
	// the most dangerous case wherever a security predicate has to decide.
	KindUnexpected Kind = iota
	// KindMalformed means the caller passed input that can never succeed
	// (empty token, empty user id). No I/O was attempted.
	KindMalformed
	// KindNotProvisioned means the expected table does not exist yet. The
	// feature backed by that table is simply inactive.
	KindNotProvisioned
	// KindTransient means the store was unreachable or timed out and a
	// retry could succeed.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindNotProvisioned:
		return "not_provisioned"
	case KindTransient:
		return "transient"
	default:
		return "unexpected"
	}
}

// Error is the only error type the durable-store adapters return.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err and wraps it with the operation name.
func NewError(op string, err error) *Error {
	return &Error{Kind: Classify(err), Op: op, Err: err}
}

// Malformed reports a bad-input failure without any underlying cause.
func Malformed(op, detail string) *Error {
	return &Error{Kind: KindMalformed, Op: op, Err: errors.New(detail)}
}

// KindOf extracts the kind from an error chain. Errors that did not come
// from a storage adapter are treated as unexpected.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

// Postgres SQLSTATE codes that matter for the taxonomy.
const (
	codeUndefinedTable  = "42P01"
	codeInvalidSchema   = "3F000"
	codeAdminShutdown   = "57P01"
	codeCannotConnect   = "57P03"
	codeTooManyConns    = "53300"
	codeSerialization   = "40001"
	codeDeadlock        = "40P01"
	classConnException  = "08"
	classInsufficientRs = "53"
)

// Classify maps a raw driver error onto the closed kind set.
func Classify(err error) Kind {
	if err == nil {
		return KindUnexpected
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable, codeInvalidSchema:
			return KindNotProvisioned
		case codeAdminShutdown, codeCannotConnect, codeTooManyConns,
			codeSerialization, codeDeadlock:
			return KindTransient
		}
		class := pgErr.Code
		if len(class) >= 2 {
			class = class[:2]
		}
		if class == classConnException || class == classInsufficientRs {
			return KindTransient
		}
		return KindUnexpected
	}

	if pgconn.Timeout(err) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransient
	}

	// database/sql surfaces closed pools as plain strings.
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "broken pipe") {
		return KindTransient
	}

	return KindUnexpected
}
