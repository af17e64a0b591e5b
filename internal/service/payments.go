package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/logger"
	"gatherly/internal/models"
	"gatherly/internal/policy"
)

var errShortfall = errors.New("capacity shortfall")

// Purchase prices, risk-scores and charges an order. High-risk orders are
// parked as pending payments for manual review without calling the gateway.
// Attendees are created later, when the gateway confirms the charge.
func (s *FulfillmentService) Purchase(ctx context.Context, actor models.Actor, ticketID int64, req models.PurchaseRequest) (*models.PurchaseResponse, error) {
	if actor.ID <= 0 {
		return nil, apperrors.ErrUnauthorized
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, apperrors.ErrInvalidQuantity
	}
	if req.DonationAmount < 0 {
		return nil, apperrors.New(apperrors.Invalid, "donation amount must not be negative")
	}

	log := logger.WithContext(ctx).With("ticket_id", ticketID, "user_id", actor.ID)

	cacheKey := ""
	if req.IdempotencyKey != "" {
		cacheKey = strconv.FormatInt(actor.ID, 10) + ":" + req.IdempotencyKey
		if resp := s.cachedPurchase(ctx, cacheKey); resp != nil {
			return resp, nil
		}
		resp, err := s.replayPurchase(ctx, actor, req.IdempotencyKey)
		if err != nil || resp != nil {
			return resp, err
		}
	}

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil {
		return nil, apperrors.ErrTicketNotFound
	}
	event, err := s.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event == nil {
		return nil, apperrors.ErrEventNotFound
	}
	if !event.Published {
		return nil, apperrors.ErrEventNotAvailable
	}

	now := s.clock.Now()
	if ticket.Expired(now) {
		return nil, apperrors.ErrTicketExpired
	}
	if ticket.Sold+quantity > ticket.Quantity {
		return nil, apperrors.ErrCapacityExceeded
	}
	if ticket.LimitPerUser > 0 {
		held, err := s.store.CountUserAttendees(ctx, ticketID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("count user attendees: %w", err)
		}
		if held+quantity > ticket.LimitPerUser {
			return nil, apperrors.ErrLimitExceeded
		}
	}
	if ticket.IsDonation && req.DonationAmount < ticket.MinDonationAmount {
		return nil, apperrors.ErrDonationTooLow
	}

	amount := ticket.Price*int64(quantity) + req.DonationAmount
	if amount <= 0 {
		return nil, apperrors.New(apperrors.Invalid, "nothing to charge, register for free tickets instead")
	}

	recent, err := s.store.CountRecentPayments(ctx, actor.ID, now.Add(-policy.RecentPaymentWindow))
	if err != nil {
		return nil, fmt.Errorf("count recent payments: %w", err)
	}
	risk := policy.EvaluateRisk(policy.RiskInput{
		UserID:         actor.ID,
		Ticket:         ticket,
		Quantity:       quantity,
		DonationAmount: req.DonationAmount,
		RecentPayments: recent,
	})

	payment := &models.Payment{
		TicketID:       ticketID,
		UserID:         actor.ID,
		Quantity:       quantity,
		Amount:         amount,
		DonationAmount: req.DonationAmount,
		Currency:       ticket.Currency,
		Status:         models.PaymentPending,
		RiskScore:      risk.Score,
		RiskLevel:      risk.Level,
		RiskFlags:      risk.Flags,
		PaymentType:    models.PaymentTypeTicket,
		CreatedAt:      now,
	}
	if req.DonationAmount > 0 {
		payment.PaymentType = models.PaymentTypeTicketDonation
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		payment.IdempotencyKey = &key
	}

	var resp *models.PurchaseResponse
	if risk.Level == models.RiskHigh {
		resp, err = s.holdForReview(ctx, payment)
	} else {
		resp, err = s.charge(ctx, payment)
	}
	if err != nil {
		if apperrors.Is(err, apperrors.Conflict) && req.IdempotencyKey != "" {
			// A concurrent request with the same key won the insert.
			if replay, rerr := s.replayPurchase(ctx, actor, req.IdempotencyKey); rerr == nil && replay != nil {
				return replay, nil
			}
		}
		return nil, err
	}
	resp.Risk = models.RiskSummary{Score: risk.Score, Level: risk.Level, Flags: risk.Flags}

	log.Info("Purchase created",
		"payment_id", resp.PaymentID,
		"amount", amount,
		"risk_score", risk.Score,
		"risk_level", risk.Level,
		"review_required", resp.ReviewRequired)

	if cacheKey != "" && s.cache != nil {
		if err := s.cache.SetPurchase(ctx, cacheKey, resp, purchaseCacheTTL); err != nil {
			log.Warn("Failed to cache purchase result", "error", err)
		}
	}
	return resp, nil
}

func (s *FulfillmentService) holdForReview(ctx context.Context, payment *models.Payment) (*models.PurchaseResponse, error) {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		_, err := s.outbox.Enqueue(ctx, models.EventPaymentReviewRequired, paymentEvent(payment, nil, "", s.clock.Now()))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Purchase(string(payment.RiskLevel), "review")
	return &models.PurchaseResponse{PaymentID: payment.ID, ReviewRequired: true}, nil
}

func (s *FulfillmentService) charge(ctx context.Context, payment *models.Payment) (*models.PurchaseResponse, error) {
	chargeKey := uuid.NewString()
	if payment.IdempotencyKey != nil {
		chargeKey = *payment.IdempotencyKey
	}

	charge, err := s.gateway.Charge(ctx, models.ChargeRequest{
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		IdempotencyKey: chargeKey,
		Metadata: map[string]string{
			"ticket_id":    strconv.FormatInt(payment.TicketID, 10),
			"user_id":      strconv.FormatInt(payment.UserID, 10),
			"quantity":     strconv.Itoa(payment.Quantity),
			"payment_type": payment.PaymentType,
		},
	})
	if err != nil {
		s.metrics.Purchase(string(payment.RiskLevel), "gateway_error")
		logger.WithContext(ctx).Error("Charge gateway call failed",
			"error", err,
			"ticket_id", payment.TicketID,
			"amount", payment.Amount)
		return nil, &apperrors.Error{
			Kind:    apperrors.Transient,
			Op:      "charge",
			Message: apperrors.ErrGatewayUnavailable.Message,
			Err:     err,
		}
	}

	chargeID, secret := charge.ID, charge.ClientSecret
	payment.ChargeID = &chargeID
	payment.ClientSecret = &secret

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		if !apperrors.Is(err, apperrors.Conflict) {
			logger.WithContext(ctx).Error("Charge created but payment was not recorded",
				"error", err,
				"alert", "reconciliation_gap",
				"charge_id", chargeID,
				"amount", payment.Amount)
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.metrics.Purchase(string(payment.RiskLevel), "charged")
	return &models.PurchaseResponse{PaymentID: payment.ID, ClientSecret: secret}, nil
}

func (s *FulfillmentService) cachedPurchase(ctx context.Context, key string) *models.PurchaseResponse {
	if s.cache == nil {
		return nil
	}
	resp, err := s.cache.GetPurchase(ctx, key)
	if err != nil {
		logger.WithContext(ctx).Warn("Purchase cache lookup failed", "error", err)
		return nil
	}
	if resp != nil {
		resp.Replayed = true
	}
	return resp
}

// replayPurchase rebuilds the response of an earlier purchase with the same key.
func (s *FulfillmentService) replayPurchase(ctx context.Context, actor models.Actor, key string) (*models.PurchaseResponse, error) {
	p, err := s.store.GetPaymentByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get payment by idempotency key: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	if p.UserID != actor.ID {
		return nil, apperrors.New(apperrors.Conflict, "idempotency key already used")
	}

	resp := &models.PurchaseResponse{
		PaymentID:      p.ID,
		ReviewRequired: p.ChargeID == nil && p.RiskLevel == models.RiskHigh,
		Risk:           models.RiskSummary{Score: p.RiskScore, Level: p.RiskLevel, Flags: p.RiskFlags},
		Replayed:       true,
	}
	if p.ClientSecret != nil {
		resp.ClientSecret = *p.ClientSecret
	}
	return resp, nil
}

// HandleGatewayEvent applies a signed gateway notification. Replays of an
// already applied event are no-ops.
func (s *FulfillmentService) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.VerifySignedEvent(payload, signature)
	if err != nil {
		return err
	}

	log := logger.WithContext(ctx).With("gateway_event_id", ev.ID, "gateway_event_type", ev.Type, "charge_id", ev.ChargeID)

	p, err := s.store.GetPaymentByChargeID(ctx, ev.ChargeID)
	if err != nil {
		return fmt.Errorf("get payment by charge: %w", err)
	}
	if p == nil {
		log.Warn("Gateway event for unknown charge ignored")
		return nil
	}

	switch ev.Type {
	case models.GatewayPaymentSucceeded:
		return s.settle(ctx, p)
	case models.GatewayPaymentFailed:
		return s.fail(ctx, p, ev.Reason)
	default:
		log.Info("Gateway event type ignored")
		return nil
	}
}

// settle confirms a captured payment and allocates its attendees. When the
// capacity is gone by then, the charge is refunded in full instead.
func (s *FulfillmentService) settle(ctx context.Context, p *models.Payment) error {
	log := logger.WithContext(ctx).With("payment_id", p.ID, "ticket_id", p.TicketID)

	var attendees []models.Attendee
	applied := false
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		applied = false
		ok, err := s.store.TransitionPayment(ctx, p.ID, models.PaymentPending, models.PaymentSucceeded)
		if err != nil {
			return fmt.Errorf("mark payment succeeded: %w", err)
		}
		if !ok {
			return nil
		}

		var fulfilled bool
		attendees, fulfilled, err = s.engine.Fulfill(ctx, p.TicketID, p.UserID, p.Quantity)
		if err != nil {
			return err
		}
		if !fulfilled {
			return errShortfall
		}

		ids := make([]int64, 0, len(attendees))
		for _, a := range attendees {
			ids = append(ids, a.ID)
		}
		if _, err := s.outbox.Enqueue(ctx, models.EventPaymentSucceeded, paymentEvent(p, ids, "", s.clock.Now())); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, errShortfall) {
		return s.refundShortfall(ctx, p)
	}
	if err != nil {
		return err
	}

	if applied {
		log.Info("Payment settled", "attendees", len(attendees))
	} else {
		log.Info("Payment already settled, event ignored")
	}
	return nil
}

func (s *FulfillmentService) refundShortfall(ctx context.Context, p *models.Payment) error {
	log := logger.WithContext(ctx).With("payment_id", p.ID, "ticket_id", p.TicketID)
	outstanding := p.Amount - p.RefundedAmount

	if outstanding > 0 && p.ChargeID != nil {
		refundKey := "fulfillment-refund-" + strconv.FormatInt(p.ID, 10)
		if err := s.gateway.Refund(ctx, *p.ChargeID, outstanding, refundKey); err != nil {
			s.metrics.Refund("gateway_error")
			log.Error("Refund after capacity shortfall failed", "error", err)
			return &apperrors.Error{Kind: apperrors.Transient, Op: "refund", Message: apperrors.ErrGatewayUnavailable.Message, Err: err}
		}
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.TransitionPayment(ctx, p.ID, models.PaymentPending, models.PaymentSucceeded)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		refunded, err := s.store.ApplyRefund(ctx, p.ID, p.RefundedAmount, outstanding, models.PaymentRefunded)
		if err != nil {
			return err
		}
		if !refunded {
			return apperrors.ErrRefundConflict
		}
		_, err = s.outbox.Enqueue(ctx, models.EventPaymentFulfillmentFailed,
			paymentEvent(p, nil, apperrors.ErrCapacityExceeded.Message, s.clock.Now()))
		return err
	})
	if err != nil {
		log.Error("Charge refunded but ledger was not updated",
			"error", err,
			"alert", "reconciliation_gap",
			"refund_amount", outstanding)
		return err
	}

	s.metrics.Refund("shortfall")
	log.Warn("Payment refunded, no capacity left", "refund_amount", outstanding)
	return nil
}

func (s *FulfillmentService) fail(ctx context.Context, p *models.Payment, reason string) error {
	applied := false
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.TransitionPayment(ctx, p.ID, models.PaymentPending, models.PaymentFailed)
		if err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		if !ok {
			return nil
		}
		applied = true
		_, err = s.outbox.Enqueue(ctx, models.EventPaymentFailed, paymentEvent(p, nil, reason, s.clock.Now()))
		return err
	})
	if err != nil {
		return err
	}

	if applied {
		logger.WithContext(ctx).Info("Payment failed", "payment_id", p.ID, "reason", reason)
	}
	return nil
}

func paymentEvent(p *models.Payment, attendeeIDs []int64, reason string, now time.Time) models.PaymentEvent {
	return models.PaymentEvent{
		PaymentID:   p.ID,
		TicketID:    p.TicketID,
		UserID:      p.UserID,
		Quantity:    p.Quantity,
		Amount:      p.Amount,
		Currency:    p.Currency,
		RiskScore:   p.RiskScore,
		RiskLevel:   p.RiskLevel,
		RiskFlags:   p.RiskFlags,
		AttendeeIDs: attendeeIDs,
		Reason:      reason,
		Timestamp:   now,
	}
}
