package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatherly/internal/outbox"
)

type fakeConn struct {
	subjects []string
	bodies   [][]byte
	err      error
	closed   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestDeliverPublishesEnvelope(t *testing.T) {
	fc := &fakeConn{}
	client := newNATSClient(fc, "gatherly.")

	err := client.Deliver(context.Background(), outbox.Delivery{
		EventType:      "waitlist.offer.created",
		Payload:        json.RawMessage(`{"offer_id":5}`),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, "gatherly.waitlist.offer.created", fc.subjects[0])

	var env Envelope
	require.NoError(t, json.Unmarshal(fc.bodies[0], &env))
	assert.Equal(t, "key-1", env.IdempotencyKey)
	assert.Equal(t, "waitlist.offer.created", env.EventType)
	assert.JSONEq(t, `{"offer_id":5}`, string(env.Payload))
	assert.False(t, env.PublishedAt.IsZero())

	require.NoError(t, client.Close())
	assert.True(t, fc.closed)
}

func TestDeliverReportsPublishFailure(t *testing.T) {
	client := newNATSClient(&fakeConn{err: errors.New("nats: timeout")}, "")

	err := client.Deliver(context.Background(), outbox.Delivery{EventType: "x", Payload: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "nats: timeout")
}

func TestDeliverHonoursCancelledContext(t *testing.T) {
	fc := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newNATSClient(fc, "").Deliver(ctx, outbox.Delivery{EventType: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fc.subjects)
}
