package models

// Gateway event types delivered to the payment webhook.
const (
	GatewayPaymentSucceeded = "payment_intent.succeeded"
	GatewayPaymentFailed    = "payment_intent.payment_failed"
)

// ChargeRequest asks the gateway to create a charge. Amount is in minor units.
type ChargeRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Charge is the gateway's handle for a created charge.
type Charge struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// GatewayEvent is a verified asynchronous notification from the gateway.
type GatewayEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	ChargeID string `json:"charge_id"`
	Reason   string `json:"reason,omitempty"`
}
