package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

type Config struct {
	URL                string `env:"DATABASE_URL"`
	Host               string `env:"DB_HOST" envDefault:"localhost"`
	Port               int    `env:"DB_PORT" envDefault:"5432"`
	User               string `env:"DB_USER" envDefault:"gatherly"`
	Password           string `env:"DB_PASSWORD" envDefault:"gatherly"`
	DBName             string `env:"DB_NAME" envDefault:"gatherly"`
	SSLMode            string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns       int    `env:"DB_MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns       int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetimeMin int    `env:"DB_CONN_MAX_LIFETIME_MIN" envDefault:"5"`
	ConnMaxIdleTimeMin int    `env:"DB_CONN_MAX_IDLE_TIME_MIN" envDefault:"1"`
}

func (cfg Config) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

func Connect(cfg Config) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMin) * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Connected to database",
		"host", cfg.Host, "port", cfg.Port, "dbname", cfg.DBName,
		"max_open_conns", cfg.MaxOpenConns, "max_idle_conns", cfg.MaxIdleConns)

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
