package models

// RegisterRequest - регистрация на мероприятие
type RegisterRequest struct {
	TicketID int64 `json:"ticket_id" binding:"required"`
}

// RegisterResponse - результат регистрации
type RegisterResponse struct {
	Attendee   Attendee `json:"attendee"`
	Waitlisted bool     `json:"waitlisted"`
}

// ClaimOfferRequest - подтверждение предложения из листа ожидания
type ClaimOfferRequest struct {
	Token string `json:"token" binding:"required"`
}

// ClaimOfferResponse - результат подтверждения предложения
type ClaimOfferResponse struct {
	Attendee Attendee      `json:"attendee"`
	Offer    WaitlistOffer `json:"offer"`
}

// PurchaseRequest - покупка билетов
type PurchaseRequest struct {
	Quantity       int    `json:"quantity"`
	DonationAmount int64  `json:"donation_amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RiskSummary is the risk evaluation attached to purchase responses
type RiskSummary struct {
	Score int       `json:"score"`
	Level RiskLevel `json:"level"`
	Flags []string  `json:"flags"`
}

// PurchaseResponse - результат покупки
type PurchaseResponse struct {
	PaymentID      int64       `json:"payment_id"`
	ClientSecret   string      `json:"client_secret,omitempty"`
	ReviewRequired bool        `json:"review_required"`
	Risk           RiskSummary `json:"risk"`
	Replayed       bool        `json:"replayed,omitempty"`
}

// RefundPreviewResponse - предварительный расчет возврата
type RefundPreviewResponse struct {
	PaymentID    int64          `json:"payment_id"`
	Eligible     bool           `json:"eligible"`
	Percent      float64        `json:"percent"`
	RefundAmount int64          `json:"refund_amount"`
	HoursUntil   float64        `json:"hours_until"`
	Policy       []RefundWindow `json:"policy"`
	Reason       string         `json:"reason,omitempty"`
}

// RefundResponse - результат возврата
type RefundResponse struct {
	Payment Payment               `json:"payment"`
	Refund  RefundPreviewResponse `json:"refund"`
}

// ScanCheckInRequest - сканирование QR-кода на входе
type ScanCheckInRequest struct {
	Token string `json:"token" binding:"required"`
}

// CheckInTokenResponse - токен для входа
type CheckInTokenResponse struct {
	Token    string `json:"token"`
	Attendee int64  `json:"attendee_id"`
}

// ProcessOutboxRequest - ручной запуск обработки outbox
type ProcessOutboxRequest struct {
	Limit int `json:"limit"`
}

// OutboxResult is the per-event outcome of a dispatch batch
type OutboxResult struct {
	ID     int64        `json:"id"`
	Status OutboxStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}
