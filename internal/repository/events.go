package repository

import (
	"context"
	"database/sql"
	"errors"

	"gatherly/internal/models"
)

func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (organizer_id, title, published, starts_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.conn(ctx).QueryRowContext(ctx, query,
		e.OrganizerID,
		e.Title,
		e.Published,
		e.StartsAt,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	e := &models.Event{}
	query := `
		SELECT id, organizer_id, title, published, starts_at, created_at
		FROM events
		WHERE id = $1`

	err := s.conn(ctx).QueryRowContext(ctx, query, id).Scan(
		&e.ID,
		&e.OrganizerID,
		&e.Title,
		&e.Published,
		&e.StartsAt,
		&e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) AddTeamMember(ctx context.Context, eventID, userID int64, role string) error {
	query := `
		INSERT INTO event_team_members (event_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role`

	_, err := s.conn(ctx).ExecContext(ctx, query, eventID, userID, role)
	return err
}

// GetTeamRole returns the user's role on the event team, or "" for non-members.
func (s *Store) GetTeamRole(ctx context.Context, eventID, userID int64) (string, error) {
	var role string
	query := `SELECT role FROM event_team_members WHERE event_id = $1 AND user_id = $2`

	err := s.conn(ctx).QueryRowContext(ctx, query, eventID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}
