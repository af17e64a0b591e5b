package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gatherly/internal/app"
	"gatherly/internal/jobs"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run outbox delivery and waitlist expiry jobs",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var locker gocron.Locker
	if a.Redis != nil {
		locker = a.Redis
	}
	worker := jobs.NewWorker(a.Dispatcher, a.Engine, locker, jobs.Config{
		OutboxInterval: cfg.Outbox.PollInterval,
		OutboxBatch:    cfg.Outbox.BatchSize,
		SweepInterval:  cfg.Worker.WaitlistSweepInterval,
	})

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		slog.Info("Worker metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Worker error", "error", err)
		return err
	}
	slog.Info("Worker shut down gracefully")
	return nil
}
