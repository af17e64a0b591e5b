package config

import "time"

// ElasticsearchConfig содержит конфигурацию для подключения к Elasticsearch
type ElasticsearchConfig struct {
	URL        string        `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	Index      string        `env:"ELASTICSEARCH_INDEX" envDefault:"gatherly-outbox"`
	Username   string        `env:"ELASTICSEARCH_USERNAME"`
	Password   string        `env:"ELASTICSEARCH_PASSWORD"`
	MaxRetries int           `env:"ELASTICSEARCH_MAX_RETRIES" envDefault:"3"`
	Timeout    time.Duration `env:"ELASTICSEARCH_TIMEOUT" envDefault:"30s"`
}
