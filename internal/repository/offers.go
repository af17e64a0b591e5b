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

const offerColumns = `id, event_id, ticket_id, attendee_id, token, status, expires_at, claimed_at, created_at`

func scanOffer(row rowScanner) (*models.WaitlistOffer, error) {
	o := &models.WaitlistOffer{}
	err := row.Scan(
		&o.ID,
		&o.EventID,
		&o.TicketID,
		&o.AttendeeID,
		&o.Token,
		&o.Status,
		&o.ExpiresAt,
		&o.ClaimedAt,
		&o.CreatedAt,
	)
	return o, err
}

func (s *Store) CountPendingOffers(ctx context.Context, ticketID int64, now time.Time) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM waitlist_offers
		WHERE ticket_id = $1 AND status = 'pending' AND expires_at > $2`
	err := s.conn(ctx).QueryRowContext(ctx, query, ticketID, now).Scan(&n)
	return n, err
}

func (s *Store) CreateOffer(ctx context.Context, o *models.WaitlistOffer) error {
	query := `
		INSERT INTO waitlist_offers (event_id, ticket_id, attendee_id, token, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.conn(ctx).QueryRowContext(ctx, query,
		o.EventID,
		o.TicketID,
		o.AttendeeID,
		o.Token,
		o.Status,
		o.ExpiresAt,
		o.CreatedAt,
	).Scan(&o.ID)
	if database.IsUniqueViolation(err) {
		return apperrors.Wrap(apperrors.Conflict, "create offer", err)
	}
	return err
}

func (s *Store) GetOfferByToken(ctx context.Context, token string) (*models.WaitlistOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM waitlist_offers WHERE token = $1`
	o, err := scanOffer(s.conn(ctx).QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) HasPendingOffer(ctx context.Context, attendeeID, ticketID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
		    SELECT 1 FROM waitlist_offers
		    WHERE attendee_id = $1 AND ticket_id = $2 AND status = 'pending'
		)`
	err := s.conn(ctx).QueryRowContext(ctx, query, attendeeID, ticketID).Scan(&exists)
	return exists, err
}

// TransitionOffer moves the offer from one status to another only if it is
// still in the expected one. claimed_at is stamped on claim.
func (s *Store) TransitionOffer(ctx context.Context, id int64, from, to models.OfferStatus, at time.Time) (bool, error) {
	query := `
		UPDATE waitlist_offers
		SET status = $3, claimed_at = COALESCE($4, claimed_at)
		WHERE id = $1 AND status = $2`

	var claimedAt *time.Time
	if to == models.OfferClaimed {
		claimedAt = &at
	}
	res, err := s.conn(ctx).ExecContext(ctx, query, id, from, to, claimedAt)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) ExpireOffers(ctx context.Context, ticketID int64, now time.Time) ([]models.WaitlistOffer, error) {
	query := `
		UPDATE waitlist_offers
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
		  AND ($2::bigint = 0 OR ticket_id = $2::bigint)
		RETURNING ` + offerColumns

	return s.queryOffers(ctx, query, now, ticketID)
}

func (s *Store) ListOffers(ctx context.Context, ticketID int64) ([]models.WaitlistOffer, error) {
	query := `SELECT ` + offerColumns + ` FROM waitlist_offers WHERE ticket_id = $1 ORDER BY id ASC`
	return s.queryOffers(ctx, query, ticketID)
}

func (s *Store) queryOffers(ctx context.Context, query string, args ...any) ([]models.WaitlistOffer, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.WaitlistOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}
