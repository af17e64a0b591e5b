package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	pingTimeout       = 5 * time.Second
	poolPressureRatio = 0.9
)

// Check pings the database within a bounded time and reports pool pressure.
// The pool counters themselves are exported by the DBStats collector.
func (db *DB) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	if err := db.PingContext(pingCtx); err != nil {
		slog.Error("Database health check failed", "error", err, "elapsed", time.Since(start))
		return fmt.Errorf("ping database: %w", err)
	}

	stats := db.Stats()
	if limit := stats.MaxOpenConnections; limit > 0 && float64(stats.InUse) > float64(limit)*poolPressureRatio {
		slog.Warn("Ledger connection pool near exhaustion",
			"in_use", stats.InUse, "max_open", limit, "wait_count", stats.WaitCount)
	}
	return nil
}

// IsTransient reports whether err looks like a connection-level failure
// that may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// connection_exception, admin_shutdown, cannot_connect_now
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P03"
	}

	errStr := err.Error()
	for _, retryable := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"driver: bad connection",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
