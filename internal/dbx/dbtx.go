// Package dbx holds the transaction plumbing shared by the local SQLite store
// and the PostgreSQL backend.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is what statement-level code needs from *sql.DB or *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise; a panic in fn rolls back and is re-raised.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// Scope prepares a transaction before any work runs in it.
type Scope func(ctx context.Context, tx DBTX) error

// WithScopedTx is WithTx with scope applied first. A failing scope rolls the
// transaction back without calling fn.
func WithScopedTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, scope Scope, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, db, opts, func(ctx context.Context, tx DBTX) error {
		if scope != nil {
			if err := scope(ctx, tx); err != nil {
				return err
			}
		}
		return fn(ctx, tx)
	})
}

// SetLocal sets a PostgreSQL configuration parameter for the rest of the
// transaction. Row level security policies read the owner this way.
func SetLocal(name, value string) Scope {
	return func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config($1, $2, true)`, name, value); err != nil {
			return fmt.Errorf("db error: set %s: %w", name, err)
		}
		return nil
	}
}
