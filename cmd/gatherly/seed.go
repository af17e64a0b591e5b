package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"gatherly/internal/access"
	"gatherly/internal/app"
	"gatherly/internal/models"
)

var (
	seedOrganizer int64
	seedManager   int64
	seedCapacity  int
	seedStartsIn  time.Duration
	seedDryRun    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo event with regular, VIP and donation tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		starts := time.Now().UTC().Add(seedStartsIn)
		event := &models.Event{
			OrganizerID: seedOrganizer,
			Title:       fmt.Sprintf("Demo meetup %s", starts.Format("2006-01-02")),
			Published:   true,
			StartsAt:    &starts,
		}
		policy := []models.RefundWindow{
			{HoursBefore: 168, Percent: 100},
			{HoursBefore: 48, Percent: 50},
			{HoursBefore: 24, Percent: 25},
		}
		tickets := []*models.Ticket{
			{Type: models.TicketRegular, Price: 25_00, Quantity: seedCapacity, LimitPerUser: 4, RefundPolicy: policy},
			{Type: models.TicketVIP, Price: 100_00, Quantity: max(seedCapacity/10, 1), LimitPerUser: 2, RefundPolicy: policy},
			{Type: models.TicketRegular, IsDonation: true, MinDonationAmount: 5_00, Quantity: seedCapacity, LimitPerUser: 1},
		}

		if seedDryRun {
			slog.Info("Dry run, nothing written", "event", event.Title, "tickets", len(tickets))
			return printJSON(cmd, map[string]any{"event": event, "tickets": tickets})
		}

		return withApp(cmd, func(a *app.App) error {
			err := a.Ledger.WithTx(cmd.Context(), func(ctx context.Context) error {
				if err := a.Ledger.CreateEvent(ctx, event); err != nil {
					return fmt.Errorf("create event: %w", err)
				}
				for _, t := range tickets {
					t.EventID = event.ID
					if err := a.Ledger.CreateTicket(ctx, t); err != nil {
						return fmt.Errorf("create %s ticket: %w", t.Type, err)
					}
				}
				if seedManager > 0 {
					if err := a.Ledger.AddTeamMember(ctx, event.ID, seedManager, access.TeamManager); err != nil {
						return fmt.Errorf("add team member: %w", err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			slog.Info("Seeded demo event", "event_id", event.ID, "tickets", len(tickets))
			return printJSON(cmd, map[string]any{"event": event, "tickets": tickets})
		})
	},
}

func init() {
	seedCmd.Flags().Int64Var(&seedOrganizer, "organizer", 1, "organizer user id")
	seedCmd.Flags().Int64Var(&seedManager, "manager", 0, "optional team manager user id")
	seedCmd.Flags().IntVar(&seedCapacity, "capacity", 100, "regular ticket capacity")
	seedCmd.Flags().DurationVar(&seedStartsIn, "starts-in", 30*24*time.Hour, "time until the event starts")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "print what would be created without writing")
	rootCmd.AddCommand(seedCmd)
}
