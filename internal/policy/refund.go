package policy

import (
	"math"
	"sort"
	"time"

	"gatherly/internal/models"
)

const (
	ReasonWindowElapsed    = "refund window elapsed"
	ReasonStartDateMissing = "event start date missing"
)

// DefaultRefundWindows applies when a ticket carries no policy of its own.
var DefaultRefundWindows = []models.RefundWindow{
	{HoursBefore: 168, Percent: 100},
	{HoursBefore: 72, Percent: 50},
	{HoursBefore: 24, Percent: 25},
}

type RefundDecision struct {
	Eligible     bool
	Percent      float64
	RefundAmount int64
	HoursUntil   float64
	Policy       []models.RefundWindow
	Reason       string
}

// Windows returns the ticket's refund ladder sorted by HoursBefore descending.
func Windows(ticket *models.Ticket) []models.RefundWindow {
	src := DefaultRefundWindows
	if ticket != nil && len(ticket.RefundPolicy) > 0 {
		src = ticket.RefundPolicy
	}
	windows := make([]models.RefundWindow, len(src))
	copy(windows, src)
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].HoursBefore > windows[j].HoursBefore
	})
	return windows
}

// ComputeRefund decides how much of the outstanding paid amount is refundable at now.
// It does not mutate the payment.
func ComputeRefund(ticket *models.Ticket, event *models.Event, payment *models.Payment, now time.Time) RefundDecision {
	if event == nil || event.StartsAt == nil {
		return RefundDecision{Reason: ReasonStartDateMissing}
	}

	windows := Windows(ticket)
	hoursUntil := event.StartsAt.Sub(now).Hours()

	var percent float64
	for _, w := range windows {
		if hoursUntil >= w.HoursBefore {
			percent = w.Percent
			break
		}
	}

	var base int64
	if payment != nil {
		base = payment.Amount - payment.RefundedAmount
	}
	if base < 0 {
		base = 0
	}
	refund := int64(math.Round(float64(base) * percent / 100))
	if refund > base {
		refund = base
	}

	d := RefundDecision{
		Eligible:     refund > 0,
		Percent:      percent,
		RefundAmount: refund,
		HoursUntil:   hoursUntil,
		Policy:       windows,
	}
	if !d.Eligible {
		d.Reason = ReasonWindowElapsed
	}
	return d
}

// StatusAfterRefund is the payment status once refunded reaches the given cumulative amount.
func StatusAfterRefund(amount, refunded int64) models.PaymentStatus {
	if refunded >= amount {
		return models.PaymentRefunded
	}
	return models.PaymentPartialRefund
}
