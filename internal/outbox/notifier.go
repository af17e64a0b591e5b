package outbox

import (
	"context"
	"errors"
	"fmt"

	"gatherly/internal/logger"
)

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, d Delivery) error

func (f NotifierFunc) Deliver(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// LogNotifier only logs deliveries. Used when no external sink is configured.
type LogNotifier struct{}

func (LogNotifier) Deliver(ctx context.Context, d Delivery) error {
	logger.WithContext(ctx).Info("Outbox event delivered to log",
		"event_type", d.EventType,
		"idempotency_key", d.IdempotencyKey,
		"payload_bytes", len(d.Payload))
	return nil
}

type namedNotifier struct {
	name     string
	notifier Notifier
}

// MultiNotifier delivers to every sink and fails if any of them fails.
// Sinks de-duplicate on the idempotency key, so a retry after a partial
// failure is safe.
type MultiNotifier struct {
	sinks []namedNotifier
}

func NewMultiNotifier() *MultiNotifier {
	return &MultiNotifier{}
}

func (m *MultiNotifier) Add(name string, n Notifier) *MultiNotifier {
	m.sinks = append(m.sinks, namedNotifier{name: name, notifier: n})
	return m
}

func (m *MultiNotifier) Len() int {
	return len(m.sinks)
}

func (m *MultiNotifier) Deliver(ctx context.Context, d Delivery) error {
	if len(m.sinks) == 0 {
		return errors.New("no notifier sinks configured")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.notifier.Deliver(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
