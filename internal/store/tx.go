package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// Tx is one ledger transaction. All typed table operations hang off Tx so
// that a chain either commits every change it made or none of them.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	ctx  context.Context
	tx   *sql.Tx
	done bool
}

// Commit makes the transaction's changes durable.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("commit: transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op, so
// it is safe to defer.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Context returns the context the transaction is bound to.
func (t *Tx) Context() context.Context {
	return t.ctx
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

func (t *Tx) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}

// amount converts a monetary value to its INTEGER column form.
func amount(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d exceeds ledger maximum %d", v, int64(math.MaxInt64))
	}
	return int64(v), nil
}
