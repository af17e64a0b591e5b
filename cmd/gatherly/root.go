package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gatherly/internal/config"
	"gatherly/internal/logger"
	"gatherly/internal/models"
)

var cfg *config.Config

// cliActor is the identity used for operator commands run from a shell.
var cliActor = models.Actor{ID: 0, Role: models.RoleAdmin}

var rootCmd = &cobra.Command{
	Use:           "gatherly",
	Short:         "Event ticket fulfillment service",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger.Init(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
