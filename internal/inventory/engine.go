package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gatherly/internal/clock"
	apperrors "gatherly/internal/errors"
	"gatherly/internal/logger"
	"gatherly/internal/metrics"
	"gatherly/internal/models"
)

// Store is the ledger the engine mutates. Every method joins the transaction
// carried by ctx when one is open.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetTicketForUpdate(ctx context.Context, id int64) (*models.Ticket, error)

	// IncrementSold adds n to sold only if sold, the unexpired pending offers
	// and n together stay within quantity. It reports whether the row changed.
	IncrementSold(ctx context.Context, ticketID int64, n int, now time.Time) (bool, error)
	DecrementSold(ctx context.Context, ticketID int64) (bool, error)
	// ClaimSold adds one to sold clamped at quantity.
	ClaimSold(ctx context.Context, ticketID int64) error
	CountPendingOffers(ctx context.Context, ticketID int64, now time.Time) (int, error)

	CreateAttendee(ctx context.Context, a *models.Attendee) error
	GetAttendee(ctx context.Context, id int64) (*models.Attendee, error)
	CountUserAttendees(ctx context.Context, ticketID, userID int64) (int, error)
	DeleteAttendee(ctx context.Context, id int64) (bool, error)
	ConfirmAttendee(ctx context.Context, id int64) (bool, error)
	MarkCheckedIn(ctx context.Context, id int64) (bool, error)
	ListWaitlisted(ctx context.Context, ticketID int64) ([]models.Attendee, error)

	CreateOffer(ctx context.Context, o *models.WaitlistOffer) error
	GetOfferByToken(ctx context.Context, token string) (*models.WaitlistOffer, error)
	HasPendingOffer(ctx context.Context, attendeeID, ticketID int64) (bool, error)
	TransitionOffer(ctx context.Context, id int64, from, to models.OfferStatus, at time.Time) (bool, error)
	// ExpireOffers moves overdue pending offers to expired; ticketID 0 means every ticket.
	ExpireOffers(ctx context.Context, ticketID int64, now time.Time) ([]models.WaitlistOffer, error)
}

// Enqueuer records a domain event in the outbox within the caller's transaction.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventType string, payload any) (*models.OutboxEvent, error)
}

type Config struct {
	OfferWindow time.Duration `env:"WAITLIST_OFFER_EXPIRES" envDefault:"60m"`
}

// Engine owns the ticket capacity state machine: registration, waitlisting,
// offer issuance, claim and expiry.
type Engine struct {
	store       Store
	outbox      Enqueuer
	clock       clock.Clock
	metrics     *metrics.Metrics
	offerWindow time.Duration
}

func NewEngine(store Store, outbox Enqueuer, clk clock.Clock, m *metrics.Metrics, cfg Config) *Engine {
	if cfg.OfferWindow <= 0 {
		cfg.OfferWindow = time.Hour
	}
	return &Engine{
		store:       store,
		outbox:      outbox,
		clock:       clk,
		metrics:     m,
		offerWindow: cfg.OfferWindow,
	}
}

// Register creates a confirmed attendee when capacity allows and a waitlisted
// one otherwise. Losing the capacity race is not an error.
func (e *Engine) Register(ctx context.Context, eventID, ticketID, userID int64) (*models.Attendee, bool, error) {
	var attendee *models.Attendee

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		now := e.clock.Now()

		event, err := e.store.GetEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if event == nil {
			return apperrors.ErrEventNotFound
		}
		if !event.Published {
			return apperrors.ErrEventNotAvailable
		}

		ticket, err := e.lockTicket(ctx, eventID, ticketID)
		if err != nil {
			return err
		}
		if ticket.Expired(now) {
			return apperrors.ErrTicketExpired
		}

		held, err := e.store.CountUserAttendees(ctx, ticketID, userID)
		if err != nil {
			return fmt.Errorf("count user attendees: %w", err)
		}
		if ticket.LimitPerUser > 0 && held+1 > ticket.LimitPerUser {
			return apperrors.ErrLimitExceeded
		}

		confirmed, err := e.store.IncrementSold(ctx, ticketID, 1, now)
		if err != nil {
			return fmt.Errorf("increment sold: %w", err)
		}

		a := &models.Attendee{
			UserID:     userID,
			EventID:    eventID,
			TicketID:   ticketID,
			Waitlisted: !confirmed,
			VIP:        ticket.Type == models.TicketVIP,
			CreatedAt:  now,
		}
		if err := e.store.CreateAttendee(ctx, a); err != nil {
			return fmt.Errorf("create attendee: %w", err)
		}

		if a.Waitlisted {
			if _, err := e.outbox.Enqueue(ctx, models.EventWaitlistEntered, models.WaitlistEnteredEvent{
				AttendeeID: a.ID,
				EventID:    eventID,
				TicketID:   ticketID,
				UserID:     userID,
				Timestamp:  now,
			}); err != nil {
				return err
			}
		}

		attendee = a
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	e.metrics.Registration(attendee.Waitlisted)
	logger.WithContext(ctx).Info("Attendee registered",
		"attendee_id", attendee.ID,
		"ticket_id", ticketID,
		"waitlisted", attendee.Waitlisted)

	return attendee, attendee.Waitlisted, nil
}

// Remove deletes an attendee, releases its slot or pending offer reservation
// and offers the freed capacity to the next waitlisted candidate.
func (e *Engine) Remove(ctx context.Context, attendeeID int64) (*models.Attendee, *models.WaitlistOffer, error) {
	var removed *models.Attendee
	var freed bool

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		now := e.clock.Now()
		freed = false

		a, err := e.store.GetAttendee(ctx, attendeeID)
		if err != nil {
			return fmt.Errorf("get attendee: %w", err)
		}
		if a == nil {
			return apperrors.ErrAttendeeNotFound
		}

		// Ticket lock first, then re-read: waitlisted only changes under it.
		if _, err := e.store.GetTicketForUpdate(ctx, a.TicketID); err != nil {
			return fmt.Errorf("lock ticket: %w", err)
		}
		a, err = e.store.GetAttendee(ctx, attendeeID)
		if err != nil {
			return fmt.Errorf("get attendee: %w", err)
		}
		if a == nil {
			return apperrors.ErrAttendeeNotFound
		}

		hadOffer, err := e.store.HasPendingOffer(ctx, a.ID, a.TicketID)
		if err != nil {
			return fmt.Errorf("check pending offer: %w", err)
		}

		deleted, err := e.store.DeleteAttendee(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("delete attendee: %w", err)
		}
		if !deleted {
			return apperrors.ErrAttendeeNotFound
		}

		if !a.Waitlisted {
			ok, err := e.store.DecrementSold(ctx, a.TicketID)
			if err != nil {
				return fmt.Errorf("decrement sold: %w", err)
			}
			freed = ok
		}
		if hadOffer {
			freed = true
		}

		if _, err := e.outbox.Enqueue(ctx, models.EventAttendeeRemoved, models.AttendeeRemovedEvent{
			AttendeeID:    a.ID,
			EventID:       a.EventID,
			TicketID:      a.TicketID,
			UserID:        a.UserID,
			FreedCapacity: freed,
			Timestamp:     now,
		}); err != nil {
			return err
		}

		removed = a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if !freed {
		return removed, nil, nil
	}

	offer, err := e.PromoteNext(ctx, removed.EventID, removed.TicketID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to promote from waitlist after removal",
			"error", err,
			"attendee_id", removed.ID,
			"ticket_id", removed.TicketID)
		return removed, nil, nil
	}
	return removed, offer, nil
}

// PromoteNext offers free capacity to the oldest waitlisted attendee without
// a pending offer. It returns nil when there is no capacity or no candidate.
// Capacity is consumed only when the offer is claimed.
func (e *Engine) PromoteNext(ctx context.Context, eventID, ticketID int64) (*models.WaitlistOffer, error) {
	var offer *models.WaitlistOffer

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		now := e.clock.Now()
		offer = nil

		ticket, err := e.lockTicket(ctx, eventID, ticketID)
		if err != nil {
			return err
		}

		expired, err := e.store.ExpireOffers(ctx, ticketID, now)
		if err != nil {
			return fmt.Errorf("expire offers: %w", err)
		}
		for range expired {
			e.metrics.Offer("expired")
		}

		pending, err := e.store.CountPendingOffers(ctx, ticketID, now)
		if err != nil {
			return fmt.Errorf("count pending offers: %w", err)
		}
		if ticket.Quantity-ticket.Sold-pending <= 0 {
			return nil
		}

		candidates, err := e.store.ListWaitlisted(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("list waitlisted: %w", err)
		}

		for _, candidate := range candidates {
			has, err := e.store.HasPendingOffer(ctx, candidate.ID, ticketID)
			if err != nil {
				return fmt.Errorf("check pending offer: %w", err)
			}
			if has {
				continue
			}

			o := &models.WaitlistOffer{
				EventID:    eventID,
				TicketID:   ticketID,
				AttendeeID: candidate.ID,
				Token:      uuid.NewString(),
				Status:     models.OfferPending,
				ExpiresAt:  now.Add(e.offerWindow),
				CreatedAt:  now,
			}
			if err := e.store.CreateOffer(ctx, o); err != nil {
				return fmt.Errorf("create offer: %w", err)
			}

			if _, err := e.outbox.Enqueue(ctx, models.EventWaitlistOfferCreated, models.WaitlistOfferCreatedEvent{
				OfferID:    o.ID,
				AttendeeID: candidate.ID,
				EventID:    eventID,
				TicketID:   ticketID,
				Token:      o.Token,
				ExpiresAt:  o.ExpiresAt,
				Timestamp:  now,
			}); err != nil {
				return err
			}

			offer = o
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if offer != nil {
		e.metrics.Offer("created")
		logger.WithContext(ctx).Info("Waitlist offer created",
			"offer_id", offer.ID,
			"attendee_id", offer.AttendeeID,
			"ticket_id", ticketID,
			"expires_at", offer.ExpiresAt)
	}
	return offer, nil
}

// ClaimOffer converts the offer's waitlisted attendee into a confirmed one.
// Each token succeeds at most once.
func (e *Engine) ClaimOffer(ctx context.Context, token string, userID int64) (*models.Attendee, *models.WaitlistOffer, error) {
	var (
		attendee *models.Attendee
		offer    *models.WaitlistOffer
		lapsed   bool
	)

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		now := e.clock.Now()
		lapsed = false

		o, err := e.store.GetOfferByToken(ctx, token)
		if err != nil {
			return fmt.Errorf("get offer: %w", err)
		}
		if o == nil || o.Status != models.OfferPending {
			return apperrors.ErrOfferNotFound
		}

		a, err := e.store.GetAttendee(ctx, o.AttendeeID)
		if err != nil {
			return fmt.Errorf("get attendee: %w", err)
		}
		if a == nil || a.UserID != userID {
			return apperrors.ErrOfferForbidden
		}

		if _, err := e.store.GetTicketForUpdate(ctx, o.TicketID); err != nil {
			return fmt.Errorf("lock ticket: %w", err)
		}

		if o.Lapsed(now) {
			if _, err := e.store.TransitionOffer(ctx, o.ID, models.OfferPending, models.OfferExpired, now); err != nil {
				return fmt.Errorf("expire offer: %w", err)
			}
			lapsed = true
			offer = o
			return nil
		}

		claimed, err := e.store.TransitionOffer(ctx, o.ID, models.OfferPending, models.OfferClaimed, now)
		if err != nil {
			return fmt.Errorf("claim offer: %w", err)
		}
		if !claimed {
			return apperrors.ErrOfferNotFound
		}

		confirmed, err := e.store.ConfirmAttendee(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("confirm attendee: %w", err)
		}
		if !confirmed {
			return apperrors.New(apperrors.Conflict, "attendee is not waitlisted")
		}

		if err := e.store.ClaimSold(ctx, o.TicketID); err != nil {
			return fmt.Errorf("claim sold: %w", err)
		}

		if _, err := e.outbox.Enqueue(ctx, models.EventWaitlistOfferClaimed, models.WaitlistOfferClaimedEvent{
			OfferID:    o.ID,
			AttendeeID: a.ID,
			EventID:    o.EventID,
			TicketID:   o.TicketID,
			UserID:     userID,
			Timestamp:  now,
		}); err != nil {
			return err
		}

		o.Status = models.OfferClaimed
		o.ClaimedAt = &now
		a.Waitlisted = false
		offer = o
		attendee = a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if lapsed {
		e.metrics.Offer("expired")
		if _, err := e.PromoteNext(ctx, offer.EventID, offer.TicketID); err != nil {
			logger.WithContext(ctx).Error("Failed to promote from waitlist after lapsed offer",
				"error", err,
				"offer_id", offer.ID)
		}
		return nil, nil, apperrors.ErrOfferExpired
	}

	e.metrics.Offer("claimed")
	logger.WithContext(ctx).Info("Waitlist offer claimed",
		"offer_id", offer.ID,
		"attendee_id", attendee.ID)

	return attendee, offer, nil
}

// SweepExpiredOffers expires overdue offers everywhere and re-offers the
// released capacity. Claims expire lazily without it.
func (e *Engine) SweepExpiredOffers(ctx context.Context) (int, error) {
	var expired []models.WaitlistOffer
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		expired, err = e.store.ExpireOffers(ctx, 0, e.clock.Now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire offers: %w", err)
	}

	type ticketKey struct{ eventID, ticketID int64 }
	seen := make(map[ticketKey]bool)
	for _, o := range expired {
		e.metrics.Offer("expired")
		k := ticketKey{o.EventID, o.TicketID}
		if seen[k] {
			continue
		}
		seen[k] = true

		for {
			offer, err := e.PromoteNext(ctx, k.eventID, k.ticketID)
			if err != nil {
				logger.WithContext(ctx).Error("Failed to promote from waitlist during sweep",
					"error", err,
					"ticket_id", k.ticketID)
				break
			}
			if offer == nil {
				break
			}
		}
	}

	return len(expired), nil
}

// Fulfill allocates quantity confirmed attendees for a paid order in one
// conditional step. It returns false without changes when capacity is short.
func (e *Engine) Fulfill(ctx context.Context, ticketID, userID int64, quantity int) ([]models.Attendee, bool, error) {
	var attendees []models.Attendee
	var ok bool

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		now := e.clock.Now()
		attendees = nil

		ticket, err := e.store.GetTicketForUpdate(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("lock ticket: %w", err)
		}
		if ticket == nil {
			return apperrors.ErrTicketNotFound
		}

		ok, err = e.store.IncrementSold(ctx, ticketID, quantity, now)
		if err != nil {
			return fmt.Errorf("increment sold: %w", err)
		}
		if !ok {
			return nil
		}

		for i := 0; i < quantity; i++ {
			a := &models.Attendee{
				UserID:    userID,
				EventID:   ticket.EventID,
				TicketID:  ticketID,
				VIP:       ticket.Type == models.TicketVIP,
				CreatedAt: now,
			}
			if err := e.store.CreateAttendee(ctx, a); err != nil {
				return fmt.Errorf("create attendee: %w", err)
			}
			attendees = append(attendees, *a)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return attendees, ok, nil
}

// CheckIn marks a confirmed attendee of the event as present, once.
func (e *Engine) CheckIn(ctx context.Context, eventID, attendeeID int64) (*models.Attendee, error) {
	var attendee *models.Attendee

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		now := e.clock.Now()

		a, err := e.store.GetAttendee(ctx, attendeeID)
		if err != nil {
			return fmt.Errorf("get attendee: %w", err)
		}
		if a == nil || a.EventID != eventID {
			return apperrors.ErrAttendeeNotFound
		}
		if a.Waitlisted {
			return apperrors.ErrAttendeeWaitlisted
		}

		ok, err := e.store.MarkCheckedIn(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("mark checked in: %w", err)
		}
		if !ok {
			return apperrors.ErrAlreadyCheckedIn
		}

		if _, err := e.outbox.Enqueue(ctx, models.EventAttendeeCheckedIn, models.AttendeeCheckedInEvent{
			AttendeeID: a.ID,
			EventID:    a.EventID,
			TicketID:   a.TicketID,
			UserID:     a.UserID,
			Timestamp:  now,
		}); err != nil {
			return err
		}

		a.CheckedIn = true
		attendee = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.CheckIn()
	return attendee, nil
}

func (e *Engine) lockTicket(ctx context.Context, eventID, ticketID int64) (*models.Ticket, error) {
	ticket, err := e.store.GetTicketForUpdate(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("lock ticket: %w", err)
	}
	if ticket == nil || ticket.EventID != eventID {
		return nil, apperrors.ErrTicketNotFound
	}
	return ticket, nil
}
