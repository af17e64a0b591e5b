package models

import (
	"encoding/json"
	"time"
)

// Event is the read-only projection of an event the fulfillment core needs.
type Event struct {
	ID          int64      `json:"id" db:"id"`
	OrganizerID int64      `json:"organizer_id" db:"organizer_id"`
	Title       string     `json:"title" db:"title"`
	Published   bool       `json:"published" db:"published"`
	StartsAt    *time.Time `json:"starts_at" db:"starts_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

type TicketType string

const (
	TicketRegular   TicketType = "Regular"
	TicketVIP       TicketType = "VIP"
	TicketEarlyBird TicketType = "EarlyBird"
	TicketGroup     TicketType = "Group"
)

// RefundWindow grants Percent of the refundable amount when cancelled at least HoursBefore the event start.
type RefundWindow struct {
	HoursBefore float64 `json:"hours_before"`
	Percent     float64 `json:"percent"`
}

// Ticket is a priced, capacity-limited admission type. Money is in minor units.
type Ticket struct {
	ID                int64          `json:"id" db:"id"`
	EventID           int64          `json:"event_id" db:"event_id"`
	Type              TicketType     `json:"type" db:"type"`
	Price             int64          `json:"price" db:"price"`
	Currency          string         `json:"currency" db:"currency"`
	Quantity          int            `json:"quantity" db:"quantity"`
	Sold              int            `json:"sold" db:"sold"`
	LimitPerUser      int            `json:"limit_per_user" db:"limit_per_user"`
	ExpiresAt         *time.Time     `json:"expires_at" db:"expires_at"`
	IsDonation        bool           `json:"is_donation" db:"is_donation"`
	MinDonationAmount int64          `json:"min_donation_amount" db:"min_donation_amount"`
	IsScholarship     bool           `json:"is_scholarship" db:"is_scholarship"`
	RefundPolicy      []RefundWindow `json:"refund_policy" db:"refund_policy"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

func (t *Ticket) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// Attendee is a confirmed or waitlisted registration.
type Attendee struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	EventID    int64     `json:"event_id" db:"event_id"`
	TicketID   int64     `json:"ticket_id" db:"ticket_id"`
	CheckedIn  bool      `json:"checked_in" db:"checked_in"`
	Waitlisted bool      `json:"waitlisted" db:"waitlisted"`
	VIP        bool      `json:"vip" db:"vip"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type OfferStatus string

const (
	OfferPending OfferStatus = "pending"
	OfferClaimed OfferStatus = "claimed"
	OfferExpired OfferStatus = "expired"
)

// WaitlistOffer is a single-use, time-boxed invitation to claim a freed slot.
type WaitlistOffer struct {
	ID         int64       `json:"id" db:"id"`
	EventID    int64       `json:"event_id" db:"event_id"`
	TicketID   int64       `json:"ticket_id" db:"ticket_id"`
	AttendeeID int64       `json:"attendee_id" db:"attendee_id"`
	Token      string      `json:"token" db:"token"`
	Status     OfferStatus `json:"status" db:"status"`
	ExpiresAt  time.Time   `json:"expires_at" db:"expires_at"`
	ClaimedAt  *time.Time  `json:"claimed_at,omitempty" db:"claimed_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// Lapsed reports whether the offer window has closed. An offer is live only
// strictly before ExpiresAt.
func (o *WaitlistOffer) Lapsed(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentSucceeded     PaymentStatus = "succeeded"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial_refund"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	PaymentTypeTicket         = "ticket"
	PaymentTypeTicketDonation = "ticket+donation"
)

// Payment records a purchase attempt and its money movements. Amounts are in minor units.
type Payment struct {
	ID             int64         `json:"id" db:"id"`
	TicketID       int64         `json:"ticket_id" db:"ticket_id"`
	UserID         int64         `json:"user_id" db:"user_id"`
	Quantity       int           `json:"quantity" db:"quantity"`
	Amount         int64         `json:"amount" db:"amount"`
	DonationAmount int64         `json:"donation_amount" db:"donation_amount"`
	Currency       string        `json:"currency" db:"currency"`
	Status         PaymentStatus `json:"status" db:"status"`
	RefundedAmount int64         `json:"refunded_amount" db:"refunded_amount"`
	RiskScore      int           `json:"risk_score" db:"risk_score"`
	RiskLevel      RiskLevel     `json:"risk_level" db:"risk_level"`
	RiskFlags      []string      `json:"risk_flags" db:"risk_flags"`
	ChargeID       *string       `json:"charge_id,omitempty" db:"charge_id"`
	ClientSecret   *string       `json:"-" db:"client_secret"`
	IdempotencyKey *string       `json:"idempotency_key,omitempty" db:"idempotency_key"`
	PaymentType    string        `json:"payment_type" db:"payment_type"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSent       OutboxStatus = "sent"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent is a durably recorded domain event awaiting delivery.
type OutboxEvent struct {
	ID             int64           `json:"id" db:"id"`
	EventType      string          `json:"event_type" db:"event_type"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	Status         OutboxStatus    `json:"status" db:"status"`
	RetryCount     int             `json:"retry_count" db:"retry_count"`
	NextRetryAt    time.Time       `json:"next_retry_at" db:"next_retry_at"`
	IdempotencyKey string          `json:"idempotency_key" db:"idempotency_key"`
	LastError      *string         `json:"last_error,omitempty" db:"last_error"`
	SentAt         *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty" db:"claimed_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller as asserted by the upstream identity layer.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
