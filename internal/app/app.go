package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gatherly/internal/cache"
	"gatherly/internal/checkin"
	"gatherly/internal/clock"
	"gatherly/internal/config"
	"gatherly/internal/database"
	"gatherly/internal/external"
	"gatherly/internal/inventory"
	"gatherly/internal/messaging"
	"gatherly/internal/metrics"
	"gatherly/internal/models"
	"gatherly/internal/outbox"
	"gatherly/internal/repository"
	"gatherly/internal/repository/memory"
	"gatherly/internal/search"
	"gatherly/internal/service"
)

// Ledger is everything the application needs from a store backend.
type Ledger interface {
	service.Store
	inventory.Store
	outbox.Store

	CreateEvent(ctx context.Context, e *models.Event) error
	CreateTicket(ctx context.Context, t *models.Ticket) error
	AddTeamMember(ctx context.Context, eventID, userID int64, role string) error
}

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

// App holds the wired components shared by the api and worker commands.
type App struct {
	Config     *config.Config
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Ledger     Ledger
	Engine     *inventory.Engine
	Dispatcher *outbox.Dispatcher
	Service    *service.FulfillmentService
	Tokens     *checkin.Codec
	Redis      *cache.RedisClient
	Health     map[string]HealthFunc

	closers []func() error
}

// Build connects to every configured backend and wires the services.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		Health: map[string]HealthFunc{},
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := a.buildNotifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.CacheEnabled {
		a.Redis, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.Redis.Close)
		a.Health["redis"] = a.Redis.Ping
	}

	a.Tokens, err = checkin.NewCodec(cfg.CheckIn, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("checkin codec: %w", err)
	}

	clk := clock.NewSystem()
	a.Dispatcher = outbox.NewDispatcher(a.Ledger, notifier, clk, a.Metrics, cfg.Outbox)
	a.Engine = inventory.NewEngine(a.Ledger, a.Dispatcher, clk, a.Metrics, cfg.Inventory)

	deps := service.Deps{
		Store:   a.Ledger,
		Engine:  a.Engine,
		Outbox:  a.Dispatcher,
		Gateway: external.NewPaymentClient(cfg.Payment),
		Tokens:  a.Tokens,
		Clock:   clk,
		Metrics: a.Metrics,
	}
	if a.Redis != nil {
		deps.Cache = a.Redis
	}
	a.Service = service.NewFulfillmentService(deps)

	return a, nil
}

func (a *App) openLedger(ctx context.Context) error {
	switch a.Config.LedgerDriver {
	case config.LedgerMemory:
		slog.Warn("Using in-memory ledger; state is lost on restart")
		a.Ledger = memory.New()
		return nil
	default:
		db, err := database.Connect(a.Config.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Health["database"] = db.Check
		a.Registry.MustRegister(collectors.NewDBStatsCollector(db.DB, "ledger"))
		a.Ledger = repository.NewStore(db)
		return nil
	}
}

func (a *App) buildNotifier(cfg *config.Config) (outbox.Notifier, error) {
	multi := outbox.NewMultiNotifier()
	for _, sink := range cfg.NotifierSinks {
		switch sink {
		case config.SinkLog:
			multi.Add(sink, outbox.LogNotifier{})
		case config.SinkWebhook:
			multi.Add(sink, external.NewWebhookClient(cfg.Webhook))
		case config.SinkNATS:
			nc, err := messaging.NewNATSClient(cfg.NATS)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, nc.Close)
			multi.Add(sink, nc)
		case config.SinkElasticsearch:
			es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
			if err != nil {
				return nil, err
			}
			a.Health["elasticsearch"] = es.HealthCheck
			multi.Add(sink, es)
		}
	}
	if multi.Len() == 0 {
		multi.Add(config.SinkLog, outbox.LogNotifier{})
	}
	slog.Info("Outbox notifier configured", "sinks", cfg.NotifierSinks)
	return multi, nil
}

// CheckHealth runs every registered check and returns the failures by name.
func (a *App) CheckHealth(ctx context.Context) map[string]string {
	failures := map[string]string{}
	for name, check := range a.Health {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("Error closing resource", "error", err)
		}
	}
	a.closers = nil
}
