package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatherly/internal/database"
	apperrors "gatherly/internal/errors"
	"gatherly/internal/models"
)

const outboxColumns = `id, event_type, payload, status, retry_count, next_retry_at, idempotency_key,
		       last_error, sent_at, claimed_at, created_at, updated_at`

func scanOutbox(row rowScanner) (*models.OutboxEvent, error) {
	ev := &models.OutboxEvent{}
	var payload []byte
	err := row.Scan(
		&ev.ID,
		&ev.EventType,
		&payload,
		&ev.Status,
		&ev.RetryCount,
		&ev.NextRetryAt,
		&ev.IdempotencyKey,
		&ev.LastError,
		&ev.SentAt,
		&ev.ClaimedAt,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	ev.Payload = payload
	return ev, err
}

func (s *Store) InsertOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_type, payload, status, retry_count, next_retry_at,
		                           idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := s.conn(ctx).QueryRowContext(ctx, query,
		ev.EventType,
		[]byte(ev.Payload),
		ev.Status,
		ev.RetryCount,
		ev.NextRetryAt,
		ev.IdempotencyKey,
		ev.CreatedAt,
		ev.UpdatedAt,
	).Scan(&ev.ID)
	if database.IsUniqueViolation(err) {
		return apperrors.Wrap(apperrors.Conflict, "insert outbox event", err)
	}
	return err
}

func (s *Store) ReclaimStaleOutbox(ctx context.Context, staleBefore, now time.Time, lastError string) (int, error) {
	query := `
		UPDATE outbox_events
		SET status = 'failed',
		    retry_count = retry_count + 1,
		    last_error = $3,
		    next_retry_at = $2,
		    claimed_at = NULL,
		    updated_at = $2
		WHERE status = 'processing' AND claimed_at < $1`

	res, err := s.conn(ctx).ExecContext(ctx, query, staleBefore, now, lastError)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClaimOutboxBatch leases due rows to this worker. SKIP LOCKED lets several
// workers claim disjoint batches concurrently.
func (s *Store) ClaimOutboxBatch(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = 'processing', claimed_at = $1, updated_at = $1
		WHERE id IN (
		    SELECT id FROM outbox_events
		    WHERE status IN ('pending', 'failed')
		      AND retry_count < $2
		      AND next_retry_at <= $1
		    ORDER BY id ASC
		    LIMIT $3
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	return s.queryOutbox(ctx, query, now, maxRetries, limit)
}

func (s *Store) MarkOutboxSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = 'sent', sent_at = $2, last_error = NULL, claimed_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'processing'`

	res, err := s.conn(ctx).ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, lastError string, nextRetryAt, now time.Time) (bool, error) {
	query := `
		UPDATE outbox_events
		SET status = 'failed',
		    retry_count = retry_count + 1,
		    last_error = $2,
		    next_retry_at = $3,
		    claimed_at = NULL,
		    updated_at = $4
		WHERE id = $1 AND status = 'processing'`

	res, err := s.conn(ctx).ExecContext(ctx, query, id, lastError, nextRetryAt, now)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) ListOutbox(ctx context.Context, status models.OutboxStatus, limit int) ([]models.OutboxEvent, error) {
	if status == "" {
		query := `SELECT ` + outboxColumns + ` FROM outbox_events ORDER BY id DESC LIMIT $1`
		return s.queryOutbox(ctx, query, limit)
	}
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE status = $1 ORDER BY id DESC LIMIT $2`
	return s.queryOutbox(ctx, query, status, limit)
}

func (s *Store) ListDeadOutbox(ctx context.Context, maxRetries, limit int) ([]models.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = 'failed' AND retry_count >= $1
		ORDER BY id ASC
		LIMIT $2`
	return s.queryOutbox(ctx, query, maxRetries, limit)
}

func (s *Store) GetOutboxEvent(ctx context.Context, id int64) (*models.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = $1`
	ev, err := scanOutbox(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Store) queryOutbox(ctx context.Context, query string, args ...any) ([]models.OutboxEvent, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		ev, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}
