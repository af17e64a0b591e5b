package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"gatherly/internal/cache"
	"gatherly/internal/checkin"
	"gatherly/internal/database"
	"gatherly/internal/external"
	"gatherly/internal/inventory"
	"gatherly/internal/messaging"
	"gatherly/internal/outbox"
)

// Драйверы хранилища
const (
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

// Поддерживаемые получатели событий outbox
const (
	SinkLog           = "log"
	SinkWebhook       = "webhook"
	SinkNATS          = "nats"
	SinkElasticsearch = "elasticsearch"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string        `env:"PORT" envDefault:"8081"`
	GinMode        string        `env:"GIN_MODE" envDefault:"release"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// LedgerDriver выбирает хранилище: postgres или memory
	LedgerDriver string `env:"LEDGER_DRIVER" envDefault:"postgres"`
	// NotifierSinks - список получателей событий outbox через запятую
	NotifierSinks []string `env:"NOTIFIER_SINKS" envDefault:"log" envSeparator:","`
	// CacheEnabled включает кэш идемпотентных покупок и распределенную блокировку в Redis
	CacheEnabled bool `env:"REDIS_ENABLED" envDefault:"false"`

	Worker WorkerConfig

	Database      database.Config
	NATS          messaging.Config
	Elasticsearch ElasticsearchConfig
	Redis         cache.Config
	Payment       external.PaymentConfig
	Webhook       external.WebhookConfig
	Outbox        outbox.Config
	Inventory     inventory.Config
	CheckIn       checkin.Config
}

// WorkerConfig настройки фоновых задач
type WorkerConfig struct {
	WaitlistSweepInterval time.Duration `env:"WAITLIST_SWEEP_INTERVAL" envDefault:"1m"`
	MetricsPort           string        `env:"WORKER_METRICS_PORT" envDefault:"9091"`
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	switch c.LedgerDriver {
	case LedgerPostgres, LedgerMemory:
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}

	for i, sink := range c.NotifierSinks {
		sink = strings.ToLower(strings.TrimSpace(sink))
		c.NotifierSinks[i] = sink
		switch sink {
		case SinkLog, SinkNATS, SinkElasticsearch:
		case SinkWebhook:
			if c.Webhook.URL == "" {
				return fmt.Errorf("WEBHOOK_URL is required for the webhook sink")
			}
		default:
			return fmt.Errorf("unknown notifier sink %q", sink)
		}
	}

	if c.CheckIn.Secret == "" {
		return fmt.Errorf("CHECKIN_TOKEN_SECRET is required")
	}
	return nil
}

// HasSink сообщает, включен ли получатель
func (c *Config) HasSink(name string) bool {
	for _, s := range c.NotifierSinks {
		if s == name {
			return true
		}
	}
	return false
}
