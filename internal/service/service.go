package service

import (
	"context"
	"fmt"
	"time"

	"gatherly/internal/access"
	"gatherly/internal/checkin"
	"gatherly/internal/clock"
	apperrors "gatherly/internal/errors"
	"gatherly/internal/inventory"
	"gatherly/internal/metrics"
	"gatherly/internal/models"
	"gatherly/internal/outbox"
)

// Store is the part of the ledger the orchestrator reads and writes directly.
// Capacity changes go through the inventory engine.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetTeamRole(ctx context.Context, eventID, userID int64) (string, error)
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	GetAttendee(ctx context.Context, id int64) (*models.Attendee, error)
	ListAttendees(ctx context.Context, ticketID int64) ([]models.Attendee, error)
	CountUserAttendees(ctx context.Context, ticketID, userID int64) (int, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error)
	CountRecentPayments(ctx context.Context, userID int64, since time.Time) (int, error)
	TransitionPayment(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error)
	// ApplyRefund adds amount to refunded_amount only while it still equals expectedRefunded.
	ApplyRefund(ctx context.Context, id int64, expectedRefunded, amount int64, status models.PaymentStatus) (bool, error)
	ListFlaggedPayments(ctx context.Context, limit int) ([]models.Payment, error)
}

// ChargeGateway moves money. It is never called inside a ledger transaction.
type ChargeGateway interface {
	Charge(ctx context.Context, req models.ChargeRequest) (*models.Charge, error)
	Refund(ctx context.Context, chargeID string, amount int64, idempotencyKey string) error
	VerifySignedEvent(payload []byte, signature string) (*models.GatewayEvent, error)
}

// PurchaseCache remembers purchase results by idempotency key so retried
// requests are answered without touching the ledger.
type PurchaseCache interface {
	GetPurchase(ctx context.Context, key string) (*models.PurchaseResponse, error)
	SetPurchase(ctx context.Context, key string, resp *models.PurchaseResponse, ttl time.Duration) error
}

const purchaseCacheTTL = 24 * time.Hour

type Deps struct {
	Store   Store
	Engine  *inventory.Engine
	Outbox  *outbox.Dispatcher
	Gateway ChargeGateway
	Cache   PurchaseCache
	Tokens  *checkin.Codec
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// FulfillmentService is the entry point used by the HTTP and CLI layers.
type FulfillmentService struct {
	store   Store
	engine  *inventory.Engine
	outbox  *outbox.Dispatcher
	gateway ChargeGateway
	cache   PurchaseCache
	tokens  *checkin.Codec
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewFulfillmentService(d Deps) *FulfillmentService {
	clk := d.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &FulfillmentService{
		store:   d.Store,
		engine:  d.Engine,
		outbox:  d.Outbox,
		gateway: d.Gateway,
		cache:   d.Cache,
		tokens:  d.Tokens,
		clock:   clk,
		metrics: d.Metrics,
	}
}

// authorize resolves the actor's capability on the event.
func (s *FulfillmentService) authorize(ctx context.Context, actor models.Actor, eventID int64) (*models.Event, access.Decision, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, access.Decision{}, fmt.Errorf("get event: %w", err)
	}
	if event == nil {
		return nil, access.Decision{}, apperrors.ErrEventNotFound
	}

	var teamRole string
	if !actor.IsAdmin() && event.OrganizerID != actor.ID {
		teamRole, err = s.store.GetTeamRole(ctx, eventID, actor.ID)
		if err != nil {
			return nil, access.Decision{}, fmt.Errorf("get team role: %w", err)
		}
	}
	return event, access.Resolve(actor, event, teamRole), nil
}

func (s *FulfillmentService) requireManage(ctx context.Context, actor models.Actor, eventID int64) (*models.Event, error) {
	event, decision, err := s.authorize(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	if !decision.CanManage {
		return nil, apperrors.ErrForbidden
	}
	return event, nil
}

// requirePaymentManager admits the event organizer and admins only.
func (s *FulfillmentService) requirePaymentManager(ctx context.Context, actor models.Actor, eventID int64) (*models.Event, error) {
	event, decision, err := s.authorize(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	if !decision.CanManagePayments {
		return nil, apperrors.ErrForbidden
	}
	return event, nil
}

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return apperrors.ErrForbidden
	}
	return nil
}
