package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"

	"gatherly/internal/outbox"
)

type Config struct {
	URL           string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	ClusterID     string `env:"NATS_CLUSTER_ID" envDefault:"test-cluster"`
	ClientID      string `env:"NATS_CLIENT_ID" envDefault:"gatherly"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"gatherly."`
}

// conn is the subset of stan.Conn the client uses.
type conn interface {
	Publish(subject string, data []byte) error
	Close() error
}

// NATSClient publishes outbox events to NATS Streaming.
type NATSClient struct {
	conn   conn
	prefix string
}

// Envelope is the message body published for every outbox event.
type Envelope struct {
	IdempotencyKey string          `json:"idempotency_key"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishedAt    time.Time       `json:"published_at"`
}

func NewNATSClient(cfg Config) (*NATSClient, error) {
	// Unique client ID so several workers can connect to the same cluster.
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	sc, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.ConnectWait(5*time.Second),
		stan.SetConnectionLostHandler(func(_ stan.Conn, err error) {
			slog.Error("NATS Streaming connection lost", "error", err)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	slog.Info("Connected to NATS Streaming",
		"url", cfg.URL,
		"cluster_id", cfg.ClusterID,
		"client_id", clientID)

	return newNATSClient(sc, cfg.SubjectPrefix), nil
}

func newNATSClient(c conn, prefix string) *NATSClient {
	return &NATSClient{conn: c, prefix: prefix}
}

func (nc *NATSClient) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// Deliver publishes d on prefix+event type. The synchronous publish returns
// once the streaming server acknowledged the message.
func (nc *NATSClient) Deliver(ctx context.Context, d outbox.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nc.Publish(nc.prefix+d.EventType, Envelope{
		IdempotencyKey: d.IdempotencyKey,
		EventType:      d.EventType,
		Payload:        d.Payload,
		PublishedAt:    time.Now().UTC(),
	})
}

func (nc *NATSClient) Close() error {
	if nc.conn != nil {
		return nc.conn.Close()
	}
	return nil
}
