package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"gatherly/internal/database"
	apperrors "gatherly/internal/errors"
	"gatherly/internal/models"
)

const paymentColumns = `id, ticket_id, user_id, quantity, amount, donation_amount, currency, status,
		       refunded_amount, risk_score, risk_level, risk_flags, charge_id, client_secret,
		       idempotency_key, payment_type, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID,
		&p.TicketID,
		&p.UserID,
		&p.Quantity,
		&p.Amount,
		&p.DonationAmount,
		&p.Currency,
		&p.Status,
		&p.RefundedAmount,
		&p.RiskScore,
		&p.RiskLevel,
		pq.Array(&p.RiskFlags),
		&p.ChargeID,
		&p.ClientSecret,
		&p.IdempotencyKey,
		&p.PaymentType,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	flags := p.RiskFlags
	if flags == nil {
		flags = []string{}
	}

	query := `
		INSERT INTO payments (ticket_id, user_id, quantity, amount, donation_amount, currency, status,
		                      refunded_amount, risk_score, risk_level, risk_flags, charge_id, client_secret,
		                      idempotency_key, payment_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING id`

	err := s.conn(ctx).QueryRowContext(ctx, query,
		p.TicketID,
		p.UserID,
		p.Quantity,
		p.Amount,
		p.DonationAmount,
		p.Currency,
		p.Status,
		p.RefundedAmount,
		p.RiskScore,
		p.RiskLevel,
		pq.Array(flags),
		p.ChargeID,
		p.ClientSecret,
		p.IdempotencyKey,
		p.PaymentType,
		p.CreatedAt,
	).Scan(&p.ID)
	if database.IsUniqueViolation(err) {
		return apperrors.Wrap(apperrors.Conflict, "create payment", err)
	}
	return err
}

func (s *Store) getPayment(ctx context.Context, where string, arg any) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` = $1`
	p, err := scanPayment(s.conn(ctx).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.getPayment(ctx, "id", id)
}

func (s *Store) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return s.getPayment(ctx, "idempotency_key", key)
}

func (s *Store) GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error) {
	return s.getPayment(ctx, "charge_id", chargeID)
}

func (s *Store) CountRecentPayments(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM payments WHERE user_id = $1 AND created_at >= $2`
	err := s.conn(ctx).QueryRowContext(ctx, query, userID, since).Scan(&n)
	return n, err
}

func (s *Store) TransitionPayment(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error) {
	query := `UPDATE payments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	res, err := s.conn(ctx).ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ApplyRefund adds amount to refunded_amount only if nobody else refunded in
// between, so concurrent refunds cannot exceed the charged amount.
func (s *Store) ApplyRefund(ctx context.Context, id int64, expectedRefunded, amount int64, status models.PaymentStatus) (bool, error) {
	query := `
		UPDATE payments
		SET refunded_amount = refunded_amount + $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND refunded_amount = $2 AND refunded_amount + $3 <= amount`

	res, err := s.conn(ctx).ExecContext(ctx, query, id, expectedRefunded, amount, status)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) ListFlaggedPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE risk_level IN ('medium', 'high')
		ORDER BY id DESC
		LIMIT $1`

	rows, err := s.conn(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
