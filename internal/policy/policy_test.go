package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherly/internal/models"
)

func TestEvaluateRisk(t *testing.T) {
	regular := &models.Ticket{Type: models.TicketRegular, Price: 20_00}
	vip := &models.Ticket{Type: models.TicketVIP, Price: 150_00}

	tests := []struct {
		name  string
		in    RiskInput
		score int
		level models.RiskLevel
		flags []string
	}{
		{
			name:  "single regular ticket",
			in:    RiskInput{Ticket: regular, Quantity: 1},
			score: 0,
			level: models.RiskLow,
			flags: []string{},
		},
		{
			name:  "five tickets",
			in:    RiskInput{Ticket: regular, Quantity: 5},
			score: 25,
			level: models.RiskLow,
			flags: []string{FlagHighQuantity},
		},
		{
			name:  "eight tickets reach medium",
			in:    RiskInput{Ticket: regular, Quantity: 8},
			score: 45,
			level: models.RiskMedium,
			flags: []string{FlagHighQuantity, FlagVeryHighQuantity},
		},
		{
			name:  "large donation is also a high value order",
			in:    RiskInput{Ticket: regular, Quantity: 1, DonationAmount: 500_01},
			score: 25,
			level: models.RiskLow,
			flags: []string{FlagLargeDonationAmount, FlagHighValueOrder},
		},
		{
			name:  "donation of exactly 500 is not large",
			in:    RiskInput{Ticket: regular, Quantity: 1, DonationAmount: 500_00},
			score: 15,
			level: models.RiskLow,
			flags: []string{FlagHighValueOrder},
		},
		{
			name:  "bulk vip order from a repeat buyer is high",
			in:    RiskInput{Ticket: vip, Quantity: 8, RecentPayments: 3},
			score: 95,
			level: models.RiskHigh,
			flags: []string{FlagHighQuantity, FlagVeryHighQuantity, FlagHighValueOrder, FlagRapidRepeatPurchase, FlagPremiumTicket},
		},
		{
			name:  "two recent payments do not count",
			in:    RiskInput{Ticket: regular, Quantity: 1, RecentPayments: 2},
			score: 0,
			level: models.RiskLow,
			flags: []string{},
		},
		{
			name:  "score of seventy is high",
			in:    RiskInput{Ticket: vip, Quantity: 5, RecentPayments: 3, DonationAmount: 0},
			score: 75,
			level: models.RiskHigh,
			flags: []string{FlagHighQuantity, FlagHighValueOrder, FlagRapidRepeatPurchase, FlagPremiumTicket},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateRisk(tt.in)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.flags, got.Flags)
		})
	}
}

func TestLevelThresholds(t *testing.T) {
	assert.Equal(t, models.RiskLow, levelFor(39))
	assert.Equal(t, models.RiskMedium, levelFor(40))
	assert.Equal(t, models.RiskMedium, levelFor(69))
	assert.Equal(t, models.RiskHigh, levelFor(70))
}

func TestComputeRefund(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	startsIn := func(h float64) *models.Event {
		at := now.Add(time.Duration(h * float64(time.Hour)))
		return &models.Event{ID: 1, StartsAt: &at}
	}
	paid := &models.Payment{Amount: 100_00}

	t.Run("custom windows pick the first window below hours until start", func(t *testing.T) {
		ticket := &models.Ticket{RefundPolicy: []models.RefundWindow{
			{HoursBefore: 24, Percent: 25},
			{HoursBefore: 168, Percent: 100},
		}}
		d := ComputeRefund(ticket, startsIn(30), paid, now)
		assert.True(t, d.Eligible)
		assert.Equal(t, 25.0, d.Percent)
		assert.Equal(t, int64(25_00), d.RefundAmount)
		assert.InDelta(t, 30.0, d.HoursUntil, 0.0001)
		assert.Empty(t, d.Reason)
		assert.Equal(t, 168.0, d.Policy[0].HoursBefore)
	})

	t.Run("default ladder", func(t *testing.T) {
		ticket := &models.Ticket{}
		cases := map[float64]float64{
			200: 100,
			168: 100,
			100: 50,
			72:  50,
			48:  25,
			24:  25,
			23:  0,
			-5:  0,
		}
		for hours, percent := range cases {
			d := ComputeRefund(ticket, startsIn(hours), paid, now)
			assert.Equal(t, percent, d.Percent, "hours=%v", hours)
		}
	})

	t.Run("window elapsed", func(t *testing.T) {
		d := ComputeRefund(&models.Ticket{}, startsIn(2), paid, now)
		assert.False(t, d.Eligible)
		assert.Zero(t, d.RefundAmount)
		assert.Equal(t, ReasonWindowElapsed, d.Reason)
	})

	t.Run("missing start date", func(t *testing.T) {
		d := ComputeRefund(&models.Ticket{}, &models.Event{ID: 1}, paid, now)
		assert.False(t, d.Eligible)
		assert.Equal(t, ReasonStartDateMissing, d.Reason)
	})

	t.Run("already refunded amount is excluded", func(t *testing.T) {
		p := &models.Payment{Amount: 100_00, RefundedAmount: 50_00}
		d := ComputeRefund(&models.Ticket{}, startsIn(100), p, now)
		assert.Equal(t, int64(25_00), d.RefundAmount)
	})

	t.Run("fully refunded payment is not eligible", func(t *testing.T) {
		p := &models.Payment{Amount: 100_00, RefundedAmount: 100_00}
		d := ComputeRefund(&models.Ticket{}, startsIn(500), p, now)
		assert.False(t, d.Eligible)
	})

	t.Run("rounds half up to the cent", func(t *testing.T) {
		p := &models.Payment{Amount: 33_33}
		d := ComputeRefund(&models.Ticket{}, startsIn(30), p, now)
		// 3333 * 0.25 = 833.25
		assert.Equal(t, int64(833), d.RefundAmount)
		p = &models.Payment{Amount: 10_02}
		d = ComputeRefund(&models.Ticket{}, startsIn(100), p, now)
		assert.Equal(t, int64(5_01), d.RefundAmount)
	})

	t.Run("pure", func(t *testing.T) {
		ticket := &models.Ticket{}
		event := startsIn(80)
		first := ComputeRefund(ticket, event, paid, now)
		second := ComputeRefund(ticket, event, paid, now)
		require.Equal(t, first, second)
		assert.Equal(t, int64(0), paid.RefundedAmount)
	})
}

func TestWindowsDoesNotReorderTicketPolicy(t *testing.T) {
	ticket := &models.Ticket{RefundPolicy: []models.RefundWindow{
		{HoursBefore: 24, Percent: 25},
		{HoursBefore: 168, Percent: 100},
	}}
	w := Windows(ticket)
	assert.Equal(t, 168.0, w[0].HoursBefore)
	assert.Equal(t, 24.0, ticket.RefundPolicy[0].HoursBefore)
}

func TestStatusAfterRefund(t *testing.T) {
	assert.Equal(t, models.PaymentRefunded, StatusAfterRefund(100, 100))
	assert.Equal(t, models.PaymentPartialRefund, StatusAfterRefund(100, 40))
}
