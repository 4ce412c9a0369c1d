package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// ErrElevatedNotConfigured is returned when an elevated operation is
// attempted without an elevated credential. Callers must surface this as a
// configuration error; falling back to the policy-filtered pool is never
// allowed because it would return a different data set than the caller
// authorized for.
var ErrElevatedNotConfigured = errors.New("elevated database credential not configured")

// Elevated executes reads and writes with the policy-bypassing credential.
//
// Precondition for every call: the caller has already authorized the
// specific operation server-side (role classification plus resource-set
// checks), re-executed on this request. The gateway itself performs no
// authorization.
type Elevated struct {
	db *sql.DB
}

// NewElevated wraps an already-opened elevated pool. Intended for tests;
// production code obtains the gateway from ConnectionManager.
func NewElevated(db *sql.DB) *Elevated {
	return &Elevated{db: db}
}

// Configured reports whether an elevated credential is available
func (e *Elevated) Configured() bool {
	return e != nil && e.db != nil
}

// DB returns the underlying elevated pool, or nil when unconfigured. Used
// only for health probes and migrations; application reads go through the
// gateway methods.
func (e *Elevated) DB() *sql.DB {
	if e == nil {
		return nil
	}
	return e.db
}

// QueryContext runs a query with the elevated credential
func (e *Elevated) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if !e.Configured() {
		return nil, ErrElevatedNotConfigured
	}
	return e.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query with the elevated credential. The
// configuration check happens here rather than at Scan time, so callers
// must use the returned error before touching the row.
func (e *Elevated) QueryRowContext(ctx context.Context, query string, args ...interface{}) (*sql.Row, error) {
	if !e.Configured() {
		return nil, ErrElevatedNotConfigured
	}
	return e.db.QueryRowContext(ctx, query, args...), nil
}

// ExecContext runs a statement with the elevated credential
func (e *Elevated) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if !e.Configured() {
		return nil, ErrElevatedNotConfigured
	}
	return e.db.ExecContext(ctx, query, args...)
}
