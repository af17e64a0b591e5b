package service

import (
	"context"
	"fmt"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/logger"
	"gatherly/internal/models"
)

func (s *FulfillmentService) Register(ctx context.Context, actor models.Actor, eventID, ticketID int64) (*models.RegisterResponse, error) {
	if actor.ID <= 0 {
		return nil, apperrors.ErrUnauthorized
	}

	attendee, waitlisted, err := s.engine.Register(ctx, eventID, ticketID, actor.ID)
	if err != nil {
		return nil, err
	}
	return &models.RegisterResponse{Attendee: *attendee, Waitlisted: waitlisted}, nil
}

// RemoveAttendee deletes a registration on behalf of the event's managers and
// offers any freed slot to the waitlist.
func (s *FulfillmentService) RemoveAttendee(ctx context.Context, actor models.Actor, eventID, attendeeID int64) error {
	if _, err := s.requireManage(ctx, actor, eventID); err != nil {
		return err
	}

	a, err := s.store.GetAttendee(ctx, attendeeID)
	if err != nil {
		return fmt.Errorf("get attendee: %w", err)
	}
	if a == nil || a.EventID != eventID {
		return apperrors.ErrAttendeeNotFound
	}

	removed, offer, err := s.engine.Remove(ctx, attendeeID)
	if err != nil {
		return err
	}

	log := logger.WithContext(ctx).With("attendee_id", removed.ID, "event_id", eventID)
	if offer != nil {
		log.Info("Attendee removed, slot offered", "offer_id", offer.ID, "offered_attendee_id", offer.AttendeeID)
	} else {
		log.Info("Attendee removed")
	}
	return nil
}

func (s *FulfillmentService) ClaimOffer(ctx context.Context, actor models.Actor, token string) (*models.ClaimOfferResponse, error) {
	if actor.ID <= 0 {
		return nil, apperrors.ErrUnauthorized
	}
	if token == "" {
		return nil, apperrors.ErrOfferNotFound
	}

	attendee, offer, err := s.engine.ClaimOffer(ctx, token, actor.ID)
	if err != nil {
		return nil, err
	}
	return &models.ClaimOfferResponse{Attendee: *attendee, Offer: *offer}, nil
}

// ListAttendees returns every registration of a ticket, confirmed and waitlisted.
func (s *FulfillmentService) ListAttendees(ctx context.Context, actor models.Actor, eventID, ticketID int64) ([]models.Attendee, error) {
	if _, err := s.requireManage(ctx, actor, eventID); err != nil {
		return nil, err
	}

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil || ticket.EventID != eventID {
		return nil, apperrors.ErrTicketNotFound
	}

	attendees, err := s.store.ListAttendees(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	if attendees == nil {
		attendees = []models.Attendee{}
	}
	return attendees, nil
}

// IssueCheckInToken signs a check-in token for a confirmed attendee. The
// attendee's owner and the event's managers may request it.
func (s *FulfillmentService) IssueCheckInToken(ctx context.Context, actor models.Actor, attendeeID int64) (*models.CheckInTokenResponse, error) {
	a, err := s.store.GetAttendee(ctx, attendeeID)
	if err != nil {
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	if a == nil {
		return nil, apperrors.ErrAttendeeNotFound
	}

	if a.UserID != actor.ID {
		if _, err := s.requireManage(ctx, actor, a.EventID); err != nil {
			return nil, err
		}
	}
	if a.Waitlisted {
		return nil, apperrors.ErrAttendeeWaitlisted
	}

	token, err := s.tokens.Sign(a.ID, a.EventID, a.TicketID)
	if err != nil {
		return nil, fmt.Errorf("sign check-in token: %w", err)
	}
	return &models.CheckInTokenResponse{Token: token, Attendee: a.ID}, nil
}

// ScanCheckIn verifies a presented token at the door of eventID and checks
// the attendee in.
func (s *FulfillmentService) ScanCheckIn(ctx context.Context, actor models.Actor, eventID int64, token string) (*models.Attendee, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.EventID != eventID {
		return nil, apperrors.New(apperrors.InvalidToken, "check-in token belongs to another event")
	}

	if _, err := s.requireManage(ctx, actor, eventID); err != nil {
		return nil, err
	}

	a, err := s.store.GetAttendee(ctx, claims.AttendeeID)
	if err != nil {
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	if a == nil {
		return nil, apperrors.ErrAttendeeNotFound
	}
	if a.TicketID != claims.TicketID {
		return nil, apperrors.New(apperrors.InvalidToken, "check-in token does not match the attendee's ticket")
	}

	attendee, err := s.engine.CheckIn(ctx, eventID, claims.AttendeeID)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Attendee checked in",
		"attendee_id", attendee.ID,
		"event_id", eventID,
		"scanned_by", actor.ID)
	return attendee, nil
}
