package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/models"
)

const signatureTolerance = 5 * time.Minute

// PaymentClient talks to the charge gateway.
type PaymentClient struct {
	baseURL       string
	teamSlug      string
	password      string
	webhookSecret string
	httpClient    *http.Client
	now           func() time.Time
}

// PaymentConfig настройки платежного шлюза
type PaymentConfig struct {
	BaseURL       string        `env:"PAYMENT_GATEWAY_URL" envDefault:"http://localhost:8082"`
	TeamSlug      string        `env:"PAYMENT_TEAM_SLUG" envDefault:"gatherly"`
	Password      string        `env:"PAYMENT_PASSWORD"`
	WebhookSecret string        `env:"PAYMENT_WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"30s"`
}

type chargeRequest struct {
	TeamSlug       string            `json:"teamSlug"`
	Token          string            `json:"token"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotencyKey"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	Success      bool   `json:"success"`
	ChargeID     string `json:"chargeId"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
}

type refundRequest struct {
	TeamSlug       string `json:"teamSlug"`
	Token          string `json:"token"`
	ChargeID       string `json:"chargeId"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type refundResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &PaymentClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		teamSlug:      cfg.TeamSlug,
		password:      cfg.Password,
		webhookSecret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// generateToken hashes the sorted parameter values together with the team credentials.
func (pc *PaymentClient) generateToken(params map[string]string) string {
	params["TeamSlug"] = pc.teamSlug
	params["Password"] = pc.password

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(params[key])
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// Charge creates a charge. The idempotency key makes a retried call return the same charge.
func (pc *PaymentClient) Charge(ctx context.Context, req models.ChargeRequest) (*models.Charge, error) {
	token := pc.generateToken(map[string]string{
		"Amount":         strconv.FormatInt(req.Amount, 10),
		"Currency":       req.Currency,
		"IdempotencyKey": req.IdempotencyKey,
	})

	var result chargeResponse
	err := pc.post(ctx, "/api/v1/charges", req.IdempotencyKey, chargeRequest{
		TeamSlug:       pc.teamSlug,
		Token:          token,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to create charge: %w", err)
	}
	if !result.Success || result.ChargeID == "" {
		return nil, fmt.Errorf("charge rejected: %s", result.Message)
	}

	return &models.Charge{
		ID:           result.ChargeID,
		ClientSecret: result.ClientSecret,
		Status:       result.Status,
	}, nil
}

// Refund returns amount of a captured charge to the buyer.
func (pc *PaymentClient) Refund(ctx context.Context, chargeID string, amount int64, idempotencyKey string) error {
	token := pc.generateToken(map[string]string{
		"Amount":   strconv.FormatInt(amount, 10),
		"ChargeId": chargeID,
	})

	var result refundResponse
	err := pc.post(ctx, "/api/v1/refunds", idempotencyKey, refundRequest{
		TeamSlug:       pc.teamSlug,
		Token:          token,
		ChargeID:       chargeID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}, &result)
	if err != nil {
		return fmt.Errorf("failed to refund charge %s: %w", chargeID, err)
	}
	if !result.Success {
		return fmt.Errorf("refund rejected: %s", result.Message)
	}
	return nil
}

func (pc *PaymentClient) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// VerifySignedEvent checks a "t=<unix>,v1=<hex hmac>" signature over
// "<unix>.<payload>" and decodes the event.
func (pc *PaymentClient) VerifySignedEvent(payload []byte, signature string) (*models.GatewayEvent, error) {
	if pc.webhookSecret == "" {
		return nil, apperrors.ErrInvalidSignature
	}

	var ts, sig string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sig == "" {
		return nil, apperrors.ErrInvalidSignature
	}

	age := pc.now().Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return nil, apperrors.ErrInvalidSignature
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return nil, apperrors.ErrInvalidSignature
	}
	if !hmac.Equal(got, signPayload(pc.webhookSecret, ts, payload)) {
		return nil, apperrors.ErrInvalidSignature
	}

	var ev models.GatewayEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		return nil, apperrors.ErrInvalidSignature
	}
	return &ev, nil
}

// SignEvent produces the header value VerifySignedEvent accepts.
func SignEvent(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(signPayload(secret, ts, payload))
}

func signPayload(secret, ts string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
