package main

import (
	"github.com/spf13/cobra"

	"gatherly/internal/app"
	"gatherly/internal/models"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and drive the outbox",
}

var (
	outboxLimit  int
	outboxStatus string
)

var outboxProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Deliver one batch of due events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			results, err := a.Service.ProcessOutbox(cmd.Context(), cliActor, outboxLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		})
	},
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			events, err := a.Service.ListOutbox(cmd.Context(), cliActor, models.OutboxStatus(outboxStatus), outboxLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		})
	},
}

var outboxFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List events that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			events, err := a.Service.FailedOutbox(cmd.Context(), cliActor, outboxLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		})
	},
}

func init() {
	outboxCmd.PersistentFlags().IntVar(&outboxLimit, "limit", 0, "maximum number of events (0 uses the default)")
	outboxListCmd.Flags().StringVar(&outboxStatus, "status", "", "filter by status: pending, processing, sent, failed")

	outboxCmd.AddCommand(outboxProcessCmd, outboxListCmd, outboxFailedCmd)
	rootCmd.AddCommand(outboxCmd)
}

func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
