package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatherly/internal/models"
)

const attendeeColumns = `id, user_id, event_id, ticket_id, checked_in, waitlisted, vip, created_at`

func scanAttendee(row rowScanner) (*models.Attendee, error) {
	a := &models.Attendee{}
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.EventID,
		&a.TicketID,
		&a.CheckedIn,
		&a.Waitlisted,
		&a.VIP,
		&a.CreatedAt,
	)
	return a, err
}

func (s *Store) CreateAttendee(ctx context.Context, a *models.Attendee) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO attendees (user_id, event_id, ticket_id, checked_in, waitlisted, vip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return s.conn(ctx).QueryRowContext(ctx, query,
		a.UserID,
		a.EventID,
		a.TicketID,
		a.CheckedIn,
		a.Waitlisted,
		a.VIP,
		a.CreatedAt,
	).Scan(&a.ID)
}

func (s *Store) GetAttendee(ctx context.Context, id int64) (*models.Attendee, error) {
	query := `SELECT ` + attendeeColumns + ` FROM attendees WHERE id = $1`
	a, err := scanAttendee(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) CountUserAttendees(ctx context.Context, ticketID, userID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM attendees WHERE ticket_id = $1 AND user_id = $2`
	err := s.conn(ctx).QueryRowContext(ctx, query, ticketID, userID).Scan(&n)
	return n, err
}

// DeleteAttendee removes the attendee; its offers go with it through the foreign key cascade.
func (s *Store) DeleteAttendee(ctx context.Context, id int64) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM attendees WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) ConfirmAttendee(ctx context.Context, id int64) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE attendees SET waitlisted = FALSE WHERE id = $1 AND waitlisted`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (s *Store) MarkCheckedIn(ctx context.Context, id int64) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE attendees SET checked_in = TRUE WHERE id = $1 AND NOT checked_in`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ListWaitlisted returns the ticket's waitlist in registration order.
func (s *Store) ListWaitlisted(ctx context.Context, ticketID int64) ([]models.Attendee, error) {
	query := `SELECT ` + attendeeColumns + `
		FROM attendees
		WHERE ticket_id = $1 AND waitlisted
		ORDER BY id ASC`
	return s.queryAttendees(ctx, query, ticketID)
}

func (s *Store) ListAttendees(ctx context.Context, ticketID int64) ([]models.Attendee, error) {
	query := `SELECT ` + attendeeColumns + `
		FROM attendees
		WHERE ticket_id = $1
		ORDER BY id ASC`
	return s.queryAttendees(ctx, query, ticketID)
}

func (s *Store) queryAttendees(ctx context.Context, query string, args ...any) ([]models.Attendee, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attendees []models.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}
