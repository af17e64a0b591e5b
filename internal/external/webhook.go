package external

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"gatherly/internal/outbox"
)

// WebhookConfig настройки исходящих вебхуков
type WebhookConfig struct {
	URL     string        `env:"WEBHOOK_URL"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// WebhookClient posts outbox events to a subscriber endpoint.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

func NewWebhookClient(cfg WebhookConfig) *WebhookClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookClient{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Deliver sends the payload as the request body. Any 2xx counts as delivered.
func (w *WebhookClient) Deliver(ctx context.Context, d outbox.Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(d.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", d.IdempotencyKey)
	req.Header.Set("X-Outbox-Event-Type", d.EventType)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
