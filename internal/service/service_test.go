package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gatherly/internal/checkin"
	"gatherly/internal/clock"
	apperrors "gatherly/internal/errors"
	"gatherly/internal/inventory"
	"gatherly/internal/models"
	"gatherly/internal/outbox"
	"gatherly/internal/repository/memory"
)

var start = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, req models.ChargeRequest) (*models.Charge, error) {
	args := m.Called(ctx, req)
	charge, _ := args.Get(0).(*models.Charge)
	return charge, args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, chargeID string, amount int64, idempotencyKey string) error {
	return m.Called(ctx, chargeID, amount, idempotencyKey).Error(0)
}

func (m *mockGateway) VerifySignedEvent(payload []byte, signature string) (*models.GatewayEvent, error) {
	args := m.Called(payload, signature)
	ev, _ := args.Get(0).(*models.GatewayEvent)
	return ev, args.Error(1)
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]models.PurchaseResponse
}

func (c *mapCache) GetPurchase(_ context.Context, key string) (*models.PurchaseResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (c *mapCache) SetPurchase(_ context.Context, key string, resp *models.PurchaseResponse, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = *resp
	return nil
}

var (
	organizer = models.Actor{ID: 1, Role: models.RoleUser}
	admin     = models.Actor{ID: 2, Role: models.RoleAdmin}
	buyer     = models.Actor{ID: 10, Role: models.RoleUser}
	stranger  = models.Actor{ID: 99, Role: models.RoleUser}
)

type env struct {
	svc     *FulfillmentService
	store   *memory.Store
	gateway *mockGateway
	cache   *mapCache
	clock   *clock.Manual
	event   *models.Event
	ticket  *models.Ticket
	deps    Deps
}

func newEnv(t *testing.T, ticket models.Ticket) *env {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	clk := clock.NewManual(start)
	dispatcher := outbox.NewDispatcher(store, outbox.LogNotifier{}, clk, nil, outbox.Config{})
	engine := inventory.NewEngine(store, dispatcher, clk, nil, inventory.Config{OfferWindow: time.Hour})
	codec, err := checkin.NewCodec(checkin.Config{Secret: "s3cret", TTL: time.Hour}, clk.Now)
	require.NoError(t, err)

	startsAt := start.Add(30 * time.Hour)
	event := &models.Event{OrganizerID: organizer.ID, Title: "GopherCon", Published: true, StartsAt: &startsAt}
	require.NoError(t, store.CreateEvent(ctx, event))
	ticket.EventID = event.ID
	if ticket.Currency == "" {
		ticket.Currency = "usd"
	}
	require.NoError(t, store.CreateTicket(ctx, &ticket))

	gw := &mockGateway{}
	cache := &mapCache{items: make(map[string]models.PurchaseResponse)}
	deps := Deps{
		Store:   store,
		Engine:  engine,
		Outbox:  dispatcher,
		Gateway: gw,
		Cache:   cache,
		Tokens:  codec,
		Clock:   clk,
	}
	svc := NewFulfillmentService(deps)
	t.Cleanup(func() { gw.AssertExpectations(t) })

	return &env{svc: svc, store: store, gateway: gw, cache: cache, clock: clk, event: event, ticket: &ticket, deps: deps}
}

// serviceWith builds a service sharing the env's collaborators but reading
// and writing the ledger through store.
func (e *env) serviceWith(store Store) *FulfillmentService {
	d := e.deps
	d.Store = store
	return NewFulfillmentService(d)
}

// refundWriteFailure is a ledger whose refund writes always fail.
type refundWriteFailure struct {
	*memory.Store
}

func (refundWriteFailure) ApplyRefund(context.Context, int64, int64, int64, models.PaymentStatus) (bool, error) {
	return false, errors.New("ledger write failed")
}

func (e *env) outboxTypes(t *testing.T) []string {
	t.Helper()
	events, err := e.store.ListOutbox(context.Background(), "", 0)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func (e *env) sold(t *testing.T) int {
	t.Helper()
	ticket, err := e.store.GetTicket(context.Background(), e.ticket.ID)
	require.NoError(t, err)
	return ticket.Sold
}

func (e *env) expectCharge(chargeID string) *mock.Call {
	return e.gateway.On("Charge", mock.Anything, mock.AnythingOfType("models.ChargeRequest")).
		Return(&models.Charge{ID: chargeID, ClientSecret: chargeID + "_secret"}, nil)
}

func TestPurchaseCharges(t *testing.T) {
	e := newEnv(t, models.Ticket{Type: models.TicketRegular, Price: 25_00, Quantity: 10})
	e.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req models.ChargeRequest) bool {
		return req.Amount == 50_00 && req.Currency == "usd" && req.Metadata["quantity"] == "2"
	})).Return(&models.Charge{ID: "ch_1", ClientSecret: "ch_1_secret"}, nil).Once()

	resp, err := e.svc.Purchase(context.Background(), buyer, e.ticket.ID, models.PurchaseRequest{Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "ch_1_secret", resp.ClientSecret)
	assert.False(t, resp.ReviewRequired)
	assert.Equal(t, models.RiskLow, resp.Risk.Level)

	p, err := e.store.GetPayment(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Equal(t, int64(50_00), p.Amount)
	assert.Equal(t, models.PaymentTypeTicket, p.PaymentType)
	require.NotNil(t, p.ChargeID)
	assert.Equal(t, "ch_1", *p.ChargeID)

	// Capacity is only taken when the gateway confirms the charge.
	assert.Equal(t, 0, e.sold(t))
}

func TestPurchaseReplaysIdempotencyKey(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 10})
	e.expectCharge("ch_1").Once()
	ctx := context.Background()
	req := models.PurchaseRequest{Quantity: 1, IdempotencyKey: "order-1"}

	first, err := e.svc.Purchase(ctx, buyer, e.ticket.ID, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := e.svc.Purchase(ctx, buyer, e.ticket.ID, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)

	// Without the cache the ledger still answers.
	e.cache.items = map[string]models.PurchaseResponse{}
	third, err := e.svc.Purchase(ctx, buyer, e.ticket.ID, req)
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Equal(t, first.PaymentID, third.PaymentID)

	_, err = e.svc.Purchase(ctx, stranger, e.ticket.ID, req)
	assert.Equal(t, apperrors.Conflict, apperrors.KindOf(err))
}

func TestHighRiskPurchaseIsHeldForReview(t *testing.T) {
	e := newEnv(t, models.Ticket{Type: models.TicketVIP, Price: 100_00, Quantity: 20})

	resp, err := e.svc.Purchase(context.Background(), buyer, e.ticket.ID, models.PurchaseRequest{Quantity: 8})
	require.NoError(t, err)
	assert.True(t, resp.ReviewRequired)
	assert.Empty(t, resp.ClientSecret)
	assert.Equal(t, models.RiskHigh, resp.Risk.Level)
	assert.GreaterOrEqual(t, resp.Risk.Score, 70)

	p, err := e.store.GetPayment(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Nil(t, p.ChargeID)
	assert.Equal(t, []string{models.EventPaymentReviewRequired}, e.outboxTypes(t))
	e.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)

	flagged, err := e.svc.ListFlaggedPayments(context.Background(), admin, 0)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, p.ID, flagged[0].ID)
}

func TestPurchaseGatewayFailurePersistsNothing(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 10})
	e.gateway.On("Charge", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	_, err := e.svc.Purchase(context.Background(), buyer, e.ticket.ID, models.PurchaseRequest{IdempotencyKey: "k"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	assert.Equal(t, apperrors.Transient, apperrors.KindOf(err))

	p, err := e.store.GetPaymentByIdempotencyKey(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPurchasePreconditions(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 2, LimitPerUser: 1, IsDonation: true, MinDonationAmount: 5_00})
	ctx := context.Background()

	tests := []struct {
		name     string
		ticketID int64
		req      models.PurchaseRequest
		want     error
	}{
		{"missing ticket", 999, models.PurchaseRequest{}, apperrors.ErrTicketNotFound},
		{"over capacity", e.ticket.ID, models.PurchaseRequest{Quantity: 3, DonationAmount: 5_00}, apperrors.ErrCapacityExceeded},
		{"over per-user limit", e.ticket.ID, models.PurchaseRequest{Quantity: 2, DonationAmount: 5_00}, apperrors.ErrLimitExceeded},
		{"donation below minimum", e.ticket.ID, models.PurchaseRequest{Quantity: 1, DonationAmount: 1_00}, apperrors.ErrDonationTooLow},
		{"negative quantity", e.ticket.ID, models.PurchaseRequest{Quantity: -1}, apperrors.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Purchase(ctx, buyer, tt.ticketID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	e.clock.Advance(24 * time.Hour)
	expiry := start
	expired := &models.Ticket{EventID: e.event.ID, Price: 10_00, Quantity: 5, ExpiresAt: &expiry}
	require.NoError(t, e.store.CreateTicket(ctx, expired))
	_, err := e.svc.Purchase(ctx, buyer, expired.ID, models.PurchaseRequest{})
	assert.ErrorIs(t, err, apperrors.ErrTicketExpired)
}

func gatewayEvent(e *env, typ, chargeID string) []byte {
	payload := []byte(typ + ":" + chargeID)
	e.gateway.On("VerifySignedEvent", payload, "sig").
		Return(&models.GatewayEvent{ID: "evt_" + chargeID, Type: typ, ChargeID: chargeID}, nil)
	return payload
}

func TestGatewaySuccessFulfillsOnce(t *testing.T) {
	e := newEnv(t, models.Ticket{Type: models.TicketVIP, Price: 10_00, Quantity: 5})
	e.expectCharge("ch_ok").Once()
	ctx := context.Background()

	resp, err := e.svc.Purchase(ctx, buyer, e.ticket.ID, models.PurchaseRequest{Quantity: 2})
	require.NoError(t, err)

	payload := gatewayEvent(e, models.GatewayPaymentSucceeded, "ch_ok")
	require.NoError(t, e.svc.HandleGatewayEvent(ctx, payload, "sig"))
	require.NoError(t, e.svc.HandleGatewayEvent(ctx, payload, "sig"))

	p, err := e.store.GetPayment(ctx, resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	assert.Equal(t, 2, e.sold(t))

	attendees, err := e.store.ListAttendees(ctx, e.ticket.ID)
	require.NoError(t, err)
	require.Len(t, attendees, 2)
	for _, a := range attendees {
		assert.Equal(t, buyer.ID, a.UserID)
		assert.True(t, a.VIP)
		assert.False(t, a.Waitlisted)
	}
	assert.Contains(t, e.outboxTypes(t), models.EventPaymentSucceeded)
}

func TestGatewaySuccessWithoutCapacityRefunds(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 1})
	e.expectCharge("ch_late").Once()
	ctx := context.Background()

	resp, err := e.svc.Purchase(ctx, buyer, e.ticket.ID, models.PurchaseRequest{})
	require.NoError(t, err)

	// Someone registered for the last slot before the charge settled.
	_, err = e.svc.Register(ctx, stranger, e.event.ID, e.ticket.ID)
	require.NoError(t, err)

	e.gateway.On("Refund", mock.Anything, "ch_late", int64(10_00), mock.Anything).Return(nil).Once()
	payload := gatewayEvent(e, models.GatewayPaymentSucceeded, "ch_late")
	require.NoError(t, e.svc.HandleGatewayEvent(ctx, payload, "sig"))

	p, err := e.store.GetPayment(ctx, resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, p.Status)
	assert.Equal(t, p.Amount, p.RefundedAmount)
	assert.Equal(t, 1, e.sold(t))
	assert.Contains(t, e.outboxTypes(t), models.EventPaymentFulfillmentFailed)
}

func TestGatewayFailureMarksPaymentFailed(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 1})
	e.expectCharge("ch_bad").Once()
	ctx := context.Background()

	resp, err := e.svc.Purchase(ctx, buyer, e.ticket.ID, models.PurchaseRequest{})
	require.NoError(t, err)

	payload := gatewayEvent(e, models.GatewayPaymentFailed, "ch_bad")
	require.NoError(t, e.svc.HandleGatewayEvent(ctx, payload, "sig"))

	p, err := e.store.GetPayment(ctx, resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, p.Status)
	assert.Equal(t, 0, e.sold(t))
	assert.Contains(t, e.outboxTypes(t), models.EventPaymentFailed)
}

func TestGatewayEventWithBadSignature(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 1})
	e.gateway.On("VerifySignedEvent", []byte("{}"), "forged").Return(nil, apperrors.ErrInvalidSignature)

	err := e.svc.HandleGatewayEvent(context.Background(), []byte("{}"), "forged")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
}

// settledPayment creates a succeeded payment of amount directly in the ledger.
func settledPayment(t *testing.T, e *env, amount int64) *models.Payment {
	t.Helper()
	chargeID := "ch_settled"
	p := &models.Payment{
		TicketID:  e.ticket.ID,
		UserID:    buyer.ID,
		Quantity:  1,
		Amount:    amount,
		Currency:  "usd",
		Status:    models.PaymentSucceeded,
		RiskLevel: models.RiskLow,
		ChargeID:  &chargeID,
	}
	require.NoError(t, e.store.CreatePayment(context.Background(), p))
	return p
}

func TestRefundWorkedExample(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 100_00, Quantity: 5, RefundPolicy: []models.RefundWindow{
		{HoursBefore: 168, Percent: 100},
		{HoursBefore: 24, Percent: 25},
	}})
	ctx := context.Background()
	p := settledPayment(t, e, 100_00)

	preview, err := e.svc.RefundPreview(ctx, organizer, p.ID)
	require.NoError(t, err)
	assert.True(t, preview.Eligible)
	assert.Equal(t, float64(25), preview.Percent)
	assert.Equal(t, int64(25_00), preview.RefundAmount)
	assert.InDelta(t, 30.0, preview.HoursUntil, 0.001)

	e.gateway.On("Refund", mock.Anything, "ch_settled", int64(25_00), mock.Anything).Return(nil).Once()
	resp, err := e.svc.Refund(ctx, organizer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartialRefund, resp.Payment.Status)
	assert.Equal(t, int64(25_00), resp.Payment.RefundedAmount)

	stored, err := e.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25_00), stored.RefundedAmount)
	assert.LessOrEqual(t, stored.RefundedAmount, stored.Amount)
	assert.Contains(t, e.outboxTypes(t), models.EventPaymentRefundProcessed)
}

func TestRefundRejections(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 100_00, Quantity: 5})
	ctx := context.Background()
	p := settledPayment(t, e, 100_00)

	_, err := e.svc.Refund(ctx, stranger, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = e.svc.Refund(ctx, organizer, 999)
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)

	pending := &models.Payment{TicketID: e.ticket.ID, UserID: buyer.ID, Amount: 10_00, Status: models.PaymentPending}
	require.NoError(t, e.store.CreatePayment(ctx, pending))
	_, err = e.svc.Refund(ctx, organizer, pending.ID)
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotSettled)

	// Default ladder: 30h before start is in the 25% window; inside 24h nothing is left.
	e.clock.Advance(7 * time.Hour)
	_, err = e.svc.Refund(ctx, organizer, p.ID)
	assert.Equal(t, apperrors.NotEligible, apperrors.KindOf(err))
	assert.Equal(t, "refund window elapsed", apperrors.Message(err))
}

func TestTeamMembersCannotRefund(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 100_00, Quantity: 5})
	ctx := context.Background()
	p := settledPayment(t, e, 100_00)

	for i, role := range []string{"manager", "checkin"} {
		member := models.Actor{ID: int64(60 + i), Role: models.RoleUser}
		require.NoError(t, e.store.AddTeamMember(ctx, e.event.ID, member.ID, role))

		_, err := e.svc.RefundPreview(ctx, member, p.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden, role)
		_, err = e.svc.Refund(ctx, member, p.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden, role)
	}

	stored, err := e.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.RefundedAmount)
}

func TestRefundLedgerFailureAfterGatewayRefund(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 100_00, Quantity: 5})
	ctx := context.Background()
	p := settledPayment(t, e, 100_00)
	svc := e.serviceWith(refundWriteFailure{e.store})
	e.gateway.On("Refund", mock.Anything, "ch_settled", int64(25_00), mock.Anything).Return(nil).Once()

	resp, err := svc.Refund(ctx, organizer, p.ID)
	require.Error(t, err)
	assert.Nil(t, resp)

	stored, err := e.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.RefundedAmount)
	assert.Equal(t, models.PaymentSucceeded, stored.Status)
	assert.NotContains(t, e.outboxTypes(t), models.EventPaymentRefundProcessed)
}

func TestRefundLosesRaceAfterGatewayRefund(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 100_00, Quantity: 5})
	ctx := context.Background()
	p := settledPayment(t, e, 100_00)

	// A concurrent refund lands while the gateway call is in flight.
	e.gateway.On("Refund", mock.Anything, "ch_settled", int64(25_00), mock.Anything).
		Run(func(mock.Arguments) {
			ok, err := e.store.ApplyRefund(ctx, p.ID, 0, 10_00, models.PaymentPartialRefund)
			require.NoError(t, err)
			require.True(t, ok)
		}).
		Return(nil).Once()

	_, err := e.svc.Refund(ctx, organizer, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrRefundConflict)

	stored, err := e.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_00), stored.RefundedAmount)
	assert.NotContains(t, e.outboxTypes(t), models.EventPaymentRefundProcessed)
}

func TestShortfallRefundLedgerFailure(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 10_00, Quantity: 1})
	svc := e.serviceWith(refundWriteFailure{e.store})
	e.expectCharge("ch_gap").Once()
	ctx := context.Background()

	resp, err := svc.Purchase(ctx, buyer, e.ticket.ID, models.PurchaseRequest{})
	require.NoError(t, err)
	_, err = svc.Register(ctx, stranger, e.event.ID, e.ticket.ID)
	require.NoError(t, err)

	e.gateway.On("Refund", mock.Anything, "ch_gap", int64(10_00), mock.Anything).Return(nil).Once()
	payload := gatewayEvent(e, models.GatewayPaymentSucceeded, "ch_gap")
	require.Error(t, svc.HandleGatewayEvent(ctx, payload, "sig"))

	p, err := e.store.GetPayment(ctx, resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Zero(t, p.RefundedAmount)
	assert.NotContains(t, e.outboxTypes(t), models.EventPaymentFulfillmentFailed)
}

func TestRefundGatewayFailureLeavesLedger(t *testing.T) {
	e := newEnv(t, models.Ticket{Price: 100_00, Quantity: 5})
	ctx := context.Background()
	p := settledPayment(t, e, 100_00)
	e.gateway.On("Refund", mock.Anything, "ch_settled", mock.Anything, mock.Anything).Return(errors.New("503")).Once()

	_, err := e.svc.Refund(ctx, admin, p.ID)
	assert.Equal(t, apperrors.Transient, apperrors.KindOf(err))

	stored, err := e.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.RefundedAmount)
	assert.Equal(t, models.PaymentSucceeded, stored.Status)
	assert.Empty(t, e.outboxTypes(t))
}

func TestRemoveAttendeeByTeamManager(t *testing.T) {
	e := newEnv(t, models.Ticket{Quantity: 1})
	ctx := context.Background()
	manager := models.Actor{ID: 50, Role: models.RoleUser}
	require.NoError(t, e.store.AddTeamMember(ctx, e.event.ID, manager.ID, "manager"))

	first, err := e.svc.Register(ctx, buyer, e.event.ID, e.ticket.ID)
	require.NoError(t, err)
	second, err := e.svc.Register(ctx, stranger, e.event.ID, e.ticket.ID)
	require.NoError(t, err)
	assert.True(t, second.Waitlisted)

	err = e.svc.RemoveAttendee(ctx, stranger, e.event.ID, first.Attendee.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, e.svc.RemoveAttendee(ctx, manager, e.event.ID, first.Attendee.ID))
	offers, err := e.store.ListOffers(ctx, e.ticket.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, second.Attendee.ID, offers[0].AttendeeID)

	claimed, err := e.svc.ClaimOffer(ctx, stranger, offers[0].Token)
	require.NoError(t, err)
	assert.False(t, claimed.Attendee.Waitlisted)

	list, err := e.svc.ListAttendees(ctx, manager, e.event.ID, e.ticket.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestScanCheckIn(t *testing.T) {
	e := newEnv(t, models.Ticket{Quantity: 1})
	ctx := context.Background()

	reg, err := e.svc.Register(ctx, buyer, e.event.ID, e.ticket.ID)
	require.NoError(t, err)
	waitlisted, err := e.svc.Register(ctx, stranger, e.event.ID, e.ticket.ID)
	require.NoError(t, err)

	_, err = e.svc.IssueCheckInToken(ctx, stranger, reg.Attendee.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = e.svc.IssueCheckInToken(ctx, stranger, waitlisted.Attendee.ID)
	assert.ErrorIs(t, err, apperrors.ErrAttendeeWaitlisted)

	tok, err := e.svc.IssueCheckInToken(ctx, buyer, reg.Attendee.ID)
	require.NoError(t, err)

	_, err = e.svc.ScanCheckIn(ctx, organizer, e.event.ID+1, tok.Token)
	assert.Equal(t, apperrors.InvalidToken, apperrors.KindOf(err))

	_, err = e.svc.ScanCheckIn(ctx, buyer, e.event.ID, tok.Token)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	a, err := e.svc.ScanCheckIn(ctx, organizer, e.event.ID, tok.Token)
	require.NoError(t, err)
	assert.True(t, a.CheckedIn)

	_, err = e.svc.ScanCheckIn(ctx, organizer, e.event.ID, tok.Token)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyCheckedIn)

	_, err = e.svc.ScanCheckIn(ctx, organizer, e.event.ID, "garbage")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestAdminOperations(t *testing.T) {
	e := newEnv(t, models.Ticket{Quantity: 1})
	ctx := context.Background()

	_, err := e.svc.Register(ctx, buyer, e.event.ID, e.ticket.ID)
	require.NoError(t, err)
	_, err = e.svc.Register(ctx, stranger, e.event.ID, e.ticket.ID)
	require.NoError(t, err)

	_, err = e.svc.ProcessOutbox(ctx, organizer, 0)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = e.svc.ListOutbox(ctx, buyer, "", 0)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = e.svc.ListFlaggedPayments(ctx, buyer, 0)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	results, err := e.svc.ProcessOutbox(ctx, admin, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.OutboxSent, results[0].Status)

	sent, err := e.svc.ListOutbox(ctx, admin, models.OutboxSent, 0)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	dead, err := e.svc.FailedOutbox(ctx, admin, 0)
	require.NoError(t, err)
	assert.Empty(t, dead)
}
