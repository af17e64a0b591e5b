package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"gatherly/internal/models"
)

// OutboxProcessor delivers due outbox events.
type OutboxProcessor interface {
	ProcessBatch(ctx context.Context, limit int) ([]models.OutboxResult, error)
}

// OfferSweeper expires lapsed waitlist offers and promotes the next in line.
type OfferSweeper interface {
	SweepExpiredOffers(ctx context.Context) (int, error)
}

type Config struct {
	OutboxInterval time.Duration
	OutboxBatch    int
	SweepInterval  time.Duration
}

// Worker runs the periodic jobs of the background process.
type Worker struct {
	outbox  OutboxProcessor
	sweeper OfferSweeper
	locker  gocron.Locker
	cfg     Config
}

// NewWorker creates the worker. A nil locker runs jobs on every instance.
func NewWorker(outbox OutboxProcessor, sweeper OfferSweeper, locker gocron.Locker, cfg Config) *Worker {
	if cfg.OutboxInterval <= 0 {
		cfg.OutboxInterval = 10 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Worker{
		outbox:  outbox,
		sweeper: sweeper,
		locker:  locker,
		cfg:     cfg,
	}
}

// Run schedules the jobs and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	var opts []gocron.SchedulerOption
	if w.locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(w.locker))
	}

	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if err := w.schedule(scheduler, "outbox-dispatch", w.cfg.OutboxInterval, func() { w.DispatchOutbox(ctx) }); err != nil {
		return err
	}
	if err := w.schedule(scheduler, "waitlist-sweep", w.cfg.SweepInterval, func() { w.SweepOffers(ctx) }); err != nil {
		return err
	}

	slog.Info("Starting background jobs",
		"outbox_interval", w.cfg.OutboxInterval,
		"sweep_interval", w.cfg.SweepInterval,
		"distributed_lock", w.locker != nil)
	scheduler.Start()

	<-ctx.Done()

	slog.Info("Stopping background jobs")
	return scheduler.Shutdown()
}

func (w *Worker) schedule(s gocron.Scheduler, name string, every time.Duration, fn func()) error {
	_, err := s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// DispatchOutbox runs one outbox batch.
func (w *Worker) DispatchOutbox(ctx context.Context) {
	results, err := w.outbox.ProcessBatch(ctx, w.cfg.OutboxBatch)
	if err != nil {
		slog.Error("Outbox dispatch failed", "error", err)
		return
	}

	var failed int
	for _, r := range results {
		if r.Status == models.OutboxFailed {
			failed++
		}
	}
	if failed > 0 {
		slog.Warn("Outbox batch had failed deliveries", "failed", failed, "total", len(results))
	}
}

// SweepOffers expires lapsed offers.
func (w *Worker) SweepOffers(ctx context.Context) {
	n, err := w.sweeper.SweepExpiredOffers(ctx)
	if err != nil {
		slog.Error("Waitlist sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Expired waitlist offers", "count", n)
	}
}
