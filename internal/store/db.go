package store

import (
	"context"
	"database/sql"
)

// DBTX is the query surface the PostgreSQL task store runs on. Both *sql.DB
// and *sql.Tx satisfy it, so the same store serves the connection pool in
// the server and a rolled-back transaction in integration tests.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
