package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiNotifier(t *testing.T) {
	ctx := context.Background()
	d := Delivery{EventType: "x", IdempotencyKey: "k"}

	assert.Error(t, NewMultiNotifier().Deliver(ctx, d))

	var got []string
	ok := func(name string) Notifier {
		return NotifierFunc(func(_ context.Context, d Delivery) error {
			got = append(got, name+":"+d.IdempotencyKey)
			return nil
		})
	}
	failing := NotifierFunc(func(context.Context, Delivery) error { return errors.New("unreachable") })

	m := NewMultiNotifier().Add("nats", ok("nats")).Add("webhook", failing).Add("log", LogNotifier{})
	assert.Equal(t, 3, m.Len())

	err := m.Deliver(ctx, d)
	assert.EqualError(t, err, "webhook: unreachable")
	assert.Equal(t, []string{"nats:k"}, got)
}
