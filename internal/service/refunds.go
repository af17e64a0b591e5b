package service

import (
	"context"
	"fmt"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/logger"
	"gatherly/internal/models"
	"gatherly/internal/policy"
)

// RefundPreview computes what Refund would return right now without moving money.
func (s *FulfillmentService) RefundPreview(ctx context.Context, actor models.Actor, paymentID int64) (*models.RefundPreviewResponse, error) {
	p, _, decision, err := s.refundDecision(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	preview := refundPreview(p.ID, decision)
	return &preview, nil
}

// Refund returns the policy share of the outstanding amount. The gateway is
// called first; the ledger only changes after it succeeded.
func (s *FulfillmentService) Refund(ctx context.Context, actor models.Actor, paymentID int64) (*models.RefundResponse, error) {
	p, _, decision, err := s.refundDecision(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if !decision.Eligible {
		s.metrics.Refund("rejected")
		return nil, apperrors.New(apperrors.NotEligible, decision.Reason)
	}
	if p.ChargeID == nil {
		return nil, apperrors.ErrPaymentNotCaptured
	}

	log := logger.WithContext(ctx).With("payment_id", p.ID, "charge_id", *p.ChargeID, "refund_amount", decision.RefundAmount)

	refundKey := fmt.Sprintf("refund-%d-%d", p.ID, p.RefundedAmount)
	if err := s.gateway.Refund(ctx, *p.ChargeID, decision.RefundAmount, refundKey); err != nil {
		s.metrics.Refund("gateway_error")
		log.Error("Gateway refund failed", "error", err)
		return nil, &apperrors.Error{Kind: apperrors.Transient, Op: "refund", Message: apperrors.ErrGatewayUnavailable.Message, Err: err}
	}

	refunded := p.RefundedAmount + decision.RefundAmount
	status := policy.StatusAfterRefund(p.Amount, refunded)

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.ApplyRefund(ctx, p.ID, p.RefundedAmount, decision.RefundAmount, status)
		if err != nil {
			return fmt.Errorf("apply refund: %w", err)
		}
		if !ok {
			return apperrors.ErrRefundConflict
		}
		_, err = s.outbox.Enqueue(ctx, models.EventPaymentRefundProcessed, models.RefundProcessedEvent{
			PaymentID:      p.ID,
			RefundAmount:   decision.RefundAmount,
			RefundedAmount: refunded,
			Percent:        decision.Percent,
			Status:         status,
			ActorID:        actor.ID,
			Timestamp:      s.clock.Now(),
		})
		return err
	})
	if err != nil {
		s.metrics.Refund("ledger_error")
		log.Error("Gateway refunded but ledger was not updated",
			"error", err,
			"alert", "reconciliation_gap")
		return nil, err
	}

	s.metrics.Refund(string(status))
	log.Info("Refund processed", "status", status, "percent", decision.Percent)

	p.RefundedAmount = refunded
	p.Status = status
	return &models.RefundResponse{Payment: *p, Refund: refundPreview(p.ID, decision)}, nil
}

func (s *FulfillmentService) refundDecision(ctx context.Context, actor models.Actor, paymentID int64) (*models.Payment, *models.Event, policy.RefundDecision, error) {
	var none policy.RefundDecision

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, none, fmt.Errorf("get payment: %w", err)
	}
	if p == nil {
		return nil, nil, none, apperrors.ErrPaymentNotFound
	}

	ticket, err := s.store.GetTicket(ctx, p.TicketID)
	if err != nil {
		return nil, nil, none, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil {
		return nil, nil, none, apperrors.ErrTicketNotFound
	}

	event, err := s.requirePaymentManager(ctx, actor, ticket.EventID)
	if err != nil {
		return nil, nil, none, err
	}

	if p.Status != models.PaymentSucceeded && p.Status != models.PaymentPartialRefund {
		return nil, nil, none, apperrors.ErrPaymentNotSettled
	}

	return p, event, policy.ComputeRefund(ticket, event, p, s.clock.Now()), nil
}

func refundPreview(paymentID int64, d policy.RefundDecision) models.RefundPreviewResponse {
	return models.RefundPreviewResponse{
		PaymentID:    paymentID,
		Eligible:     d.Eligible,
		Percent:      d.Percent,
		RefundAmount: d.RefundAmount,
		HoursUntil:   d.HoursUntil,
		Policy:       d.Policy,
		Reason:       d.Reason,
	}
}
