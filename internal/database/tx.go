package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"

	apperrors "gatherly/internal/errors"
)

type txKey struct{}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	maxTxAttempts  = 3
	txBackoffDelay = 20 * time.Millisecond
)

// WithTx runs fn inside a transaction carried by the context. A nested call
// joins the outer transaction. Serialization failures and deadlocks restart fn.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		lastErr = db.runTx(ctx, fn)
		if lastErr == nil || !isRetryableTxError(lastErr) {
			return classify(lastErr)
		}
		if attempt < maxTxAttempts {
			slog.Warn("Transaction aborted by contention, retrying",
				"attempt", attempt, "max_attempts", maxTxAttempts, "error", lastErr)
			time.Sleep(time.Duration(attempt) * txBackoffDelay)
		}
	}
	return lastErr
}

// classify marks connection-level failures as transient unless fn already
// returned a classified error.
func classify(err error) error {
	if err == nil || apperrors.KindOf(err) != apperrors.KindUnknown || !IsTransient(err) {
		return err
	}
	return &apperrors.Error{Kind: apperrors.Transient, Op: "ledger transaction", Message: "ledger unavailable", Err: err}
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Conn returns the transaction in ctx, or the pool when there is none.
func (db *DB) Conn(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
