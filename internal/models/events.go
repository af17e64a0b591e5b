package models

import "time"

// Outbox event types
const (
	EventWaitlistEntered          = "waitlist.entered"
	EventWaitlistOfferCreated     = "waitlist.offer.created"
	EventWaitlistOfferClaimed     = "waitlist.offer.claimed"
	EventAttendeeRemoved          = "attendee.removed"
	EventAttendeeCheckedIn        = "attendee.checked_in"
	EventPaymentReviewRequired    = "payment.review.required"
	EventPaymentSucceeded         = "payment.succeeded"
	EventPaymentFailed            = "payment.failed"
	EventPaymentFulfillmentFailed = "payment.fulfillment.failed"
	EventPaymentRefundProcessed   = "payment.refund.processed"
)

// WaitlistEnteredEvent is emitted when a registration lands on the waitlist
type WaitlistEnteredEvent struct {
	AttendeeID int64     `json:"attendee_id"`
	EventID    int64     `json:"event_id"`
	TicketID   int64     `json:"ticket_id"`
	UserID     int64     `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// WaitlistOfferCreatedEvent carries the claim token to the notification channel
type WaitlistOfferCreatedEvent struct {
	OfferID    int64     `json:"offer_id"`
	AttendeeID int64     `json:"attendee_id"`
	EventID    int64     `json:"event_id"`
	TicketID   int64     `json:"ticket_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Timestamp  time.Time `json:"timestamp"`
}

type WaitlistOfferClaimedEvent struct {
	OfferID    int64     `json:"offer_id"`
	AttendeeID int64     `json:"attendee_id"`
	EventID    int64     `json:"event_id"`
	TicketID   int64     `json:"ticket_id"`
	UserID     int64     `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
}

type AttendeeRemovedEvent struct {
	AttendeeID    int64     `json:"attendee_id"`
	EventID       int64     `json:"event_id"`
	TicketID      int64     `json:"ticket_id"`
	UserID        int64     `json:"user_id"`
	FreedCapacity bool      `json:"freed_capacity"`
	Timestamp     time.Time `json:"timestamp"`
}

type AttendeeCheckedInEvent struct {
	AttendeeID int64     `json:"attendee_id"`
	EventID    int64     `json:"event_id"`
	TicketID   int64     `json:"ticket_id"`
	UserID     int64     `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// PaymentEvent is shared by the payment lifecycle event types
type PaymentEvent struct {
	PaymentID   int64     `json:"payment_id"`
	TicketID    int64     `json:"ticket_id"`
	UserID      int64     `json:"user_id"`
	Quantity    int       `json:"quantity"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	RiskScore   int       `json:"risk_score"`
	RiskLevel   RiskLevel `json:"risk_level"`
	RiskFlags   []string  `json:"risk_flags,omitempty"`
	AttendeeIDs []int64   `json:"attendee_ids,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type RefundProcessedEvent struct {
	PaymentID      int64         `json:"payment_id"`
	RefundAmount   int64         `json:"refund_amount"`
	RefundedAmount int64         `json:"refunded_amount"`
	Percent        float64       `json:"percent"`
	Status         PaymentStatus `json:"status"`
	ActorID        int64         `json:"actor_id"`
	Timestamp      time.Time     `json:"timestamp"`
}
