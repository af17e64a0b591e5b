package policy

import (
	"time"

	"gatherly/internal/models"
)

// RecentPaymentWindow is the lookback used to count RiskInput.RecentPayments.
const RecentPaymentWindow = 10 * time.Minute

// Risk flags
const (
	FlagHighQuantity        = "high_quantity"
	FlagVeryHighQuantity    = "very_high_quantity"
	FlagLargeDonationAmount = "large_donation_amount"
	FlagHighValueOrder      = "high_value_order"
	FlagRapidRepeatPurchase = "rapid_repeat_purchase"
	FlagPremiumTicket       = "premium_ticket"
)

// Thresholds in minor units where money is involved.
const (
	highQuantity         = 5
	veryHighQuantity     = 8
	largeDonationAmount  = 500_00
	highValueOrder       = 500_00
	rapidRepeatPurchases = 3
	mediumRiskScore      = 40
	highRiskScore        = 70
)

// RiskInput is the point-in-time view of a prospective purchase.
// RecentPayments is the number of payments the user created in the lookback window.
type RiskInput struct {
	UserID         int64
	Ticket         *models.Ticket
	Quantity       int
	DonationAmount int64
	RecentPayments int
}

type Risk struct {
	Score int
	Level models.RiskLevel
	Flags []string
}

// EvaluateRisk scores a purchase additively and classifies it.
func EvaluateRisk(in RiskInput) Risk {
	score := 0
	flags := []string{}

	var unitPrice int64
	if in.Ticket != nil {
		unitPrice = in.Ticket.Price
	}
	total := unitPrice*int64(in.Quantity) + in.DonationAmount

	if in.Quantity >= highQuantity {
		score += 25
		flags = append(flags, FlagHighQuantity)
	}
	if in.Quantity >= veryHighQuantity {
		score += 20
		flags = append(flags, FlagVeryHighQuantity)
	}
	if in.DonationAmount > largeDonationAmount {
		score += 10
		flags = append(flags, FlagLargeDonationAmount)
	}
	if total >= highValueOrder {
		score += 15
		flags = append(flags, FlagHighValueOrder)
	}
	if in.RecentPayments >= rapidRepeatPurchases {
		score += 25
		flags = append(flags, FlagRapidRepeatPurchase)
	}
	if in.Ticket != nil && in.Ticket.Type == models.TicketVIP {
		score += 10
		flags = append(flags, FlagPremiumTicket)
	}

	return Risk{Score: score, Level: levelFor(score), Flags: flags}
}

func levelFor(score int) models.RiskLevel {
	switch {
	case score >= highRiskScore:
		return models.RiskHigh
	case score >= mediumRiskScore:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
