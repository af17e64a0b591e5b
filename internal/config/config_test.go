package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHECKIN_TOKEN_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, LedgerPostgres, cfg.LedgerDriver)
	assert.Equal(t, []string{SinkLog}, cfg.NotifierSinks)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Outbox.MaxBackoff)
	assert.Equal(t, time.Hour, cfg.Inventory.OfferWindow)
	assert.Equal(t, "gatherly-outbox", cfg.Elasticsearch.Index)
	assert.Equal(t, time.Minute, cfg.Worker.WaitlistSweepInterval)
}

func TestLoadSinks(t *testing.T) {
	t.Setenv("CHECKIN_TOKEN_SECRET", "s3cret")
	t.Setenv("NOTIFIER_SINKS", "log, Webhook,nats")
	t.Setenv("WEBHOOK_URL", "http://hooks.test/outbox")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.HasSink(SinkWebhook))
	assert.True(t, cfg.HasSink(SinkNATS))
	assert.False(t, cfg.HasSink(SinkElasticsearch))
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"missing secret":      {},
		"unknown driver":      {"CHECKIN_TOKEN_SECRET": "s", "LEDGER_DRIVER": "sqlite"},
		"unknown sink":        {"CHECKIN_TOKEN_SECRET": "s", "NOTIFIER_SINKS": "kafka"},
		"webhook without url": {"CHECKIN_TOKEN_SECRET": "s", "NOTIFIER_SINKS": "webhook"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CHECKIN_TOKEN_SECRET", "")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
