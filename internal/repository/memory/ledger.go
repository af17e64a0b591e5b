package memory

import (
	"context"
	"sort"
	"time"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/models"
)

// Payments

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.do(ctx, func(st *state) error {
		for _, existing := range st.payments {
			if p.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *p.IdempotencyKey {
				return apperrors.New(apperrors.Conflict, "duplicate idempotency key")
			}
			if p.ChargeID != nil && existing.ChargeID != nil && *existing.ChargeID == *p.ChargeID {
				return apperrors.New(apperrors.Conflict, "duplicate charge id")
			}
		}
		p.ID = st.nextID()
		now := time.Now().UTC()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = p.CreatedAt
		st.payments[p.ID] = *p
		return nil
	})
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	var out *models.Payment
	err := s.do(ctx, func(st *state) error {
		if p, ok := st.payments[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (s *Store) findPayment(ctx context.Context, match func(p models.Payment) bool) (*models.Payment, error) {
	var out *models.Payment
	err := s.do(ctx, func(st *state) error {
		for _, p := range st.payments {
			if match(p) {
				out = &p
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return s.findPayment(ctx, func(p models.Payment) bool {
		return p.IdempotencyKey != nil && *p.IdempotencyKey == key
	})
}

func (s *Store) GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error) {
	return s.findPayment(ctx, func(p models.Payment) bool {
		return p.ChargeID != nil && *p.ChargeID == chargeID
	})
}

func (s *Store) CountRecentPayments(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.do(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.UserID == userID && !p.CreatedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) TransitionPayment(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		p, found := st.payments[id]
		if !found || p.Status != from {
			return nil
		}
		p.Status = to
		p.UpdatedAt = time.Now().UTC()
		st.payments[id] = p
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ApplyRefund(ctx context.Context, id int64, expectedRefunded, amount int64, status models.PaymentStatus) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		p, found := st.payments[id]
		if !found || p.RefundedAmount != expectedRefunded || p.RefundedAmount+amount > p.Amount {
			return nil
		}
		p.RefundedAmount += amount
		p.Status = status
		p.UpdatedAt = time.Now().UTC()
		st.payments[id] = p
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ListFlaggedPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := s.do(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.RiskLevel == models.RiskMedium || p.RiskLevel == models.RiskHigh {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// Outbox

func (s *Store) InsertOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error {
	return s.do(ctx, func(st *state) error {
		for _, existing := range st.outbox {
			if existing.IdempotencyKey == ev.IdempotencyKey {
				return apperrors.New(apperrors.Conflict, "duplicate outbox idempotency key")
			}
		}
		ev.ID = st.nextID()
		st.outbox[ev.ID] = *ev
		return nil
	})
}

func (s *Store) ReclaimStaleOutbox(ctx context.Context, staleBefore, now time.Time, lastError string) (int, error) {
	var n int
	err := s.do(ctx, func(st *state) error {
		for id, ev := range st.outbox {
			if ev.Status != models.OutboxProcessing || ev.ClaimedAt == nil || !ev.ClaimedAt.Before(staleBefore) {
				continue
			}
			msg := lastError
			ev.Status = models.OutboxFailed
			ev.RetryCount++
			ev.LastError = &msg
			ev.NextRetryAt = now
			ev.ClaimedAt = nil
			ev.UpdatedAt = now
			st.outbox[id] = ev
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) ClaimOutboxBatch(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := s.do(ctx, func(st *state) error {
		var due []models.OutboxEvent
		for _, ev := range st.outbox {
			if ev.Status != models.OutboxPending && ev.Status != models.OutboxFailed {
				continue
			}
			if ev.RetryCount >= maxRetries || ev.NextRetryAt.After(now) {
				continue
			}
			due = append(due, ev)
		}
		sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
		if len(due) > limit {
			due = due[:limit]
		}
		for _, ev := range due {
			claimedAt := now
			ev.Status = models.OutboxProcessing
			ev.ClaimedAt = &claimedAt
			ev.UpdatedAt = now
			st.outbox[ev.ID] = ev
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func (s *Store) MarkOutboxSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		ev, found := st.outbox[id]
		if !found || ev.Status != models.OutboxProcessing {
			return nil
		}
		sentAt := now
		ev.Status = models.OutboxSent
		ev.SentAt = &sentAt
		ev.LastError = nil
		ev.ClaimedAt = nil
		ev.UpdatedAt = now
		st.outbox[id] = ev
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id int64, lastError string, nextRetryAt, now time.Time) (bool, error) {
	var ok bool
	err := s.do(ctx, func(st *state) error {
		ev, found := st.outbox[id]
		if !found || ev.Status != models.OutboxProcessing {
			return nil
		}
		ev.Status = models.OutboxFailed
		ev.RetryCount++
		ev.LastError = &lastError
		ev.NextRetryAt = nextRetryAt
		ev.ClaimedAt = nil
		ev.UpdatedAt = now
		st.outbox[id] = ev
		ok = true
		return nil
	})
	return ok, err
}

func (s *Store) ListOutbox(ctx context.Context, status models.OutboxStatus, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := s.do(ctx, func(st *state) error {
		for _, ev := range st.outbox {
			if status == "" || ev.Status == status {
				out = append(out, ev)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *Store) ListDeadOutbox(ctx context.Context, maxRetries, limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := s.do(ctx, func(st *state) error {
		for _, ev := range st.outbox {
			if ev.Status == models.OutboxFailed && ev.RetryCount >= maxRetries {
				out = append(out, ev)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// GetOutboxEvent is used by the worker CLI and tests to inspect one row.
func (s *Store) GetOutboxEvent(ctx context.Context, id int64) (*models.OutboxEvent, error) {
	var out *models.OutboxEvent
	err := s.do(ctx, func(st *state) error {
		if ev, ok := st.outbox[id]; ok {
			out = &ev
		}
		return nil
	})
	return out, err
}
