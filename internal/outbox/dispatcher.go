package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"gatherly/internal/clock"
	"gatherly/internal/logger"
	"gatherly/internal/metrics"
	"gatherly/internal/models"
)

const staleLeaseError = "processing lease expired"

// Store persists outbox rows. InsertOutboxEvent joins the transaction carried by ctx.
type Store interface {
	InsertOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error
	// ReclaimStaleOutbox fails processing rows claimed before staleBefore so they are retried.
	ReclaimStaleOutbox(ctx context.Context, staleBefore, now time.Time, lastError string) (int, error)
	// ClaimOutboxBatch moves up to limit due rows to processing, oldest first.
	ClaimOutboxBatch(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkOutboxFailed(ctx context.Context, id int64, lastError string, nextRetryAt, now time.Time) (bool, error)
	ListOutbox(ctx context.Context, status models.OutboxStatus, limit int) ([]models.OutboxEvent, error)
	ListDeadOutbox(ctx context.Context, maxRetries, limit int) ([]models.OutboxEvent, error)
}

// Delivery is what a Notifier receives for one outbox event.
type Delivery struct {
	EventType      string
	Payload        json.RawMessage
	IdempotencyKey string
}

// Notifier sends one event to an external system.
type Notifier interface {
	Deliver(ctx context.Context, d Delivery) error
}

type Config struct {
	MaxRetries   int           `env:"OUTBOX_MAX_RETRIES" envDefault:"5"`
	MaxBackoff   time.Duration `env:"OUTBOX_MAX_BACKOFF" envDefault:"60m"`
	StaleAfter   time.Duration `env:"OUTBOX_STALE_AFTER" envDefault:"5m"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"20"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"10s"`
	SendTimeout  time.Duration `env:"OUTBOX_SEND_TIMEOUT" envDefault:"10s"`
}

// Dispatcher records domain events and delivers them at least once.
type Dispatcher struct {
	store    Store
	notifier Notifier
	clock    clock.Clock
	metrics  *metrics.Metrics
	cfg      Config
}

func NewDispatcher(store Store, notifier Notifier, clk clock.Clock, m *metrics.Metrics, cfg Config) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		clock:    clk,
		metrics:  m,
		cfg:      cfg,
	}
}

func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Enqueue stores a pending event with a fresh idempotency key.
func (d *Dispatcher) Enqueue(ctx context.Context, eventType string, payload any) (*models.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	now := d.clock.Now()
	ev := &models.OutboxEvent{
		EventType:      eventType,
		Payload:        body,
		Status:         models.OutboxPending,
		NextRetryAt:    now,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.store.InsertOutboxEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return ev, nil
}

// ProcessBatch delivers up to limit due events. Per-event failures are
// recorded on the row and reported in the results; only a failure to claim
// the batch is returned as an error.
func (d *Dispatcher) ProcessBatch(ctx context.Context, limit int) ([]models.OutboxResult, error) {
	start := time.Now()
	defer func() { d.metrics.OutboxBatch(time.Since(start)) }()

	if limit <= 0 {
		limit = d.cfg.BatchSize
	}
	now := d.clock.Now()
	log := logger.WithContext(ctx)

	reclaimed, err := d.store.ReclaimStaleOutbox(ctx, now.Add(-d.cfg.StaleAfter), now, staleLeaseError)
	if err != nil {
		log.Error("Failed to reclaim stale outbox events", "error", err)
	} else if reclaimed > 0 {
		d.metrics.OutboxReclaimed(reclaimed)
		log.Warn("Reclaimed stale outbox events", "count", reclaimed)
	}

	events, err := d.store.ClaimOutboxBatch(ctx, now, d.cfg.MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	results := make([]models.OutboxResult, 0, len(events))
	for _, ev := range events {
		results = append(results, d.deliver(ctx, ev))
	}

	if len(results) > 0 {
		log.Info("Processed outbox batch", "count", len(results))
	}
	return results, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.OutboxEvent) models.OutboxResult {
	log := logger.WithContext(ctx).With(
		"outbox_id", ev.ID,
		"event_type", ev.EventType,
		"idempotency_key", ev.IdempotencyKey)

	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	sendErr := d.notifier.Deliver(sendCtx, Delivery{
		EventType:      ev.EventType,
		Payload:        ev.Payload,
		IdempotencyKey: ev.IdempotencyKey,
	})
	now := d.clock.Now()

	if sendErr == nil {
		if _, err := d.store.MarkOutboxSent(ctx, ev.ID, now); err != nil {
			// Delivered but not recorded: the lease reclaim will resend it.
			log.Error("Failed to mark outbox event sent", "error", err)
			return models.OutboxResult{ID: ev.ID, Status: models.OutboxProcessing, Error: err.Error()}
		}
		d.metrics.OutboxDelivery(string(models.OutboxSent))
		return models.OutboxResult{ID: ev.ID, Status: models.OutboxSent}
	}

	retries := ev.RetryCount + 1
	next := now.Add(Backoff(retries, d.cfg.MaxBackoff))
	if _, err := d.store.MarkOutboxFailed(ctx, ev.ID, sendErr.Error(), next, now); err != nil {
		log.Error("Failed to record outbox delivery failure", "error", err, "delivery_error", sendErr)
	}
	d.metrics.OutboxDelivery(string(models.OutboxFailed))

	if retries >= d.cfg.MaxRetries {
		log.Error("Outbox event exhausted retries", "error", sendErr, "retry_count", retries)
	} else {
		log.Warn("Outbox delivery failed", "error", sendErr, "retry_count", retries, "next_retry_at", next)
	}
	return models.OutboxResult{ID: ev.ID, Status: models.OutboxFailed, Error: sendErr.Error()}
}

// List returns recent events, optionally filtered by status.
func (d *Dispatcher) List(ctx context.Context, status models.OutboxStatus, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	return d.store.ListOutbox(ctx, status, limit)
}

// DeadLetters returns failed events that will not be retried.
func (d *Dispatcher) DeadLetters(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return d.store.ListDeadOutbox(ctx, d.cfg.MaxRetries, limit)
}

// Backoff is min(maxBackoff, 2^retryCount minutes) where retryCount counts
// failures including the one being recorded.
func Backoff(retryCount int, maxBackoff time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	minutes := math.Pow(2, float64(retryCount))
	if limit := maxBackoff.Minutes(); minutes > limit {
		return maxBackoff
	}
	return time.Duration(minutes * float64(time.Minute))
}
