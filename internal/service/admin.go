package service

import (
	"context"

	"gatherly/internal/models"
)

// ProcessOutbox runs one dispatch batch on demand.
func (s *FulfillmentService) ProcessOutbox(ctx context.Context, actor models.Actor, limit int) ([]models.OutboxResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.outbox.ProcessBatch(ctx, limit)
}

func (s *FulfillmentService) ListOutbox(ctx context.Context, actor models.Actor, status models.OutboxStatus, limit int) ([]models.OutboxEvent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	events, err := s.outbox.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.OutboxEvent{}
	}
	return events, nil
}

// FailedOutbox lists dead letters: failed events that exhausted their retries.
func (s *FulfillmentService) FailedOutbox(ctx context.Context, actor models.Actor, limit int) ([]models.OutboxEvent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	events, err := s.outbox.DeadLetters(ctx, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.OutboxEvent{}
	}
	return events, nil
}

// ListFlaggedPayments returns medium and high risk payments, newest first.
func (s *FulfillmentService) ListFlaggedPayments(ctx context.Context, actor models.Actor, limit int) ([]models.Payment, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	payments, err := s.store.ListFlaggedPayments(ctx, limit)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}
