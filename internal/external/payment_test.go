package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/models"
)

func newTestPaymentClient(url string) *PaymentClient {
	return NewPaymentClient(PaymentConfig{
		BaseURL:       url,
		TeamSlug:      "team",
		Password:      "pw",
		WebhookSecret: "whsec",
		Timeout:       time.Second,
	})
}

func TestChargeSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/charges", r.URL.Path)
		assert.Equal(t, "buy-1", r.Header.Get("Idempotency-Key"))

		var body chargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(45_00), body.Amount)
		assert.Equal(t, "team", body.TeamSlug)
		assert.Len(t, body.Token, 64)

		_ = json.NewEncoder(w).Encode(chargeResponse{Success: true, ChargeID: "ch_1", ClientSecret: "sec", Status: "requires_confirmation"})
	}))
	defer srv.Close()

	charge, err := newTestPaymentClient(srv.URL).Charge(context.Background(), models.ChargeRequest{
		Amount: 45_00, Currency: "usd", IdempotencyKey: "buy-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", charge.ID)
	assert.Equal(t, "sec", charge.ClientSecret)
}

func TestChargeFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"rejected": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(chargeResponse{Success: false, Message: "card declined"})
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := newTestPaymentClient(srv.URL).Charge(context.Background(), models.ChargeRequest{Amount: 1, IdempotencyKey: "k"})
			assert.Error(t, err)
		})
	}
}

func TestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/refunds", r.URL.Path)
		var body refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ch_9", body.ChargeID)
		assert.Equal(t, int64(25_00), body.Amount)
		assert.Equal(t, "refund-9-0", body.IdempotencyKey)
		_ = json.NewEncoder(w).Encode(refundResponse{Success: true, Status: "succeeded"})
	}))
	defer srv.Close()

	require.NoError(t, newTestPaymentClient(srv.URL).Refund(context.Background(), "ch_9", 25_00, "refund-9-0"))
}

func TestTokenIgnoresParameterOrder(t *testing.T) {
	pc := newTestPaymentClient("http://unused")
	a := pc.generateToken(map[string]string{"Amount": "1", "ChargeId": "c"})
	b := pc.generateToken(map[string]string{"ChargeId": "c", "Amount": "1"})
	assert.Equal(t, a, b)
}

func TestVerifySignedEvent(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pc := newTestPaymentClient("http://unused")
	pc.now = func() time.Time { return now }

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","charge_id":"ch_1"}`)

	ev, err := pc.VerifySignedEvent(payload, SignEvent("whsec", now, payload))
	require.NoError(t, err)
	assert.Equal(t, models.GatewayPaymentSucceeded, ev.Type)
	assert.Equal(t, "ch_1", ev.ChargeID)

	rejects := map[string]string{
		"empty":        "",
		"wrong secret": SignEvent("other", now, payload),
		"too old":      SignEvent("whsec", now.Add(-10*time.Minute), payload),
		"future":       SignEvent("whsec", now.Add(10*time.Minute), payload),
		"not hex":      "t=1777636800,v1=zz",
	}
	for name, sig := range rejects {
		t.Run(name, func(t *testing.T) {
			_, err := pc.VerifySignedEvent(payload, sig)
			assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
		})
	}

	t.Run("tampered payload", func(t *testing.T) {
		sig := SignEvent("whsec", now, payload)
		_, err := pc.VerifySignedEvent([]byte(`{"type":"payment_intent.succeeded","charge_id":"ch_2"}`), sig)
		assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
	})
}
