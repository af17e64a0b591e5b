package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gatherly/internal/models"
)

const ticketColumns = `id, event_id, type, price, currency, quantity, sold, limit_per_user,
		       expires_at, is_donation, min_donation_amount, is_scholarship, refund_policy,
		       created_at, updated_at`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	t := &models.Ticket{}
	var policy []byte
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.Type,
		&t.Price,
		&t.Currency,
		&t.Quantity,
		&t.Sold,
		&t.LimitPerUser,
		&t.ExpiresAt,
		&t.IsDonation,
		&t.MinDonationAmount,
		&t.IsScholarship,
		&policy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &t.RefundPolicy); err != nil {
			return nil, fmt.Errorf("decode refund policy of ticket %d: %w", t.ID, err)
		}
	}
	return t, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	policy := t.RefundPolicy
	if policy == nil {
		policy = []models.RefundWindow{}
	}
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode refund policy: %w", err)
	}
	if t.Currency == "" {
		t.Currency = "usd"
	}

	query := `
		INSERT INTO tickets (event_id, type, price, currency, quantity, sold, limit_per_user,
		                     expires_at, is_donation, min_donation_amount, is_scholarship, refund_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return s.conn(ctx).QueryRowContext(ctx, query,
		t.EventID,
		t.Type,
		t.Price,
		t.Currency,
		t.Quantity,
		t.Sold,
		t.LimitPerUser,
		t.ExpiresAt,
		t.IsDonation,
		t.MinDonationAmount,
		t.IsScholarship,
		policyJSON,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (s *Store) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	t, err := scanTicket(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetTicketForUpdate row-locks the ticket until the surrounding transaction ends.
func (s *Store) GetTicketForUpdate(ctx context.Context, id int64) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	t, err := scanTicket(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *Store) IncrementSold(ctx context.Context, ticketID int64, n int, now time.Time) (bool, error) {
	query := `
		UPDATE tickets t
		SET sold = t.sold + $2, updated_at = $3
		WHERE t.id = $1
		  AND t.sold + $2 + (
		      SELECT COUNT(*) FROM waitlist_offers o
		      WHERE o.ticket_id = t.id AND o.status = 'pending' AND o.expires_at > $3
		  ) <= t.quantity`

	res, err := s.conn(ctx).ExecContext(ctx, query, ticketID, n, now)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) DecrementSold(ctx context.Context, ticketID int64) (bool, error) {
	query := `UPDATE tickets SET sold = sold - 1, updated_at = NOW() WHERE id = $1 AND sold > 0`

	res, err := s.conn(ctx).ExecContext(ctx, query, ticketID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) ClaimSold(ctx context.Context, ticketID int64) error {
	query := `UPDATE tickets SET sold = LEAST(quantity, sold + 1), updated_at = NOW() WHERE id = $1`

	_, err := s.conn(ctx).ExecContext(ctx, query, ticketID)
	return err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
