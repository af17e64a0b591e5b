package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gatherly/internal/checkin"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Check-in token utilities",
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a check-in token and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := checkin.NewCodec(cfg.CheckIn, nil)
		if err != nil {
			return err
		}
		claims, err := codec.Verify(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, claims)
	},
}

var (
	signAttendee int64
	signEvent    int64
	signTicket   int64
)

var tokenSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Issue a check-in token for an attendee",
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := checkin.NewCodec(cfg.CheckIn, nil)
		if err != nil {
			return err
		}
		token, err := codec.Sign(signAttendee, signEvent, signTicket)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenSignCmd.Flags().Int64Var(&signAttendee, "attendee", 0, "attendee id")
	tokenSignCmd.Flags().Int64Var(&signEvent, "event", 0, "event id")
	tokenSignCmd.Flags().Int64Var(&signTicket, "ticket", 0, "ticket id")
	_ = tokenSignCmd.MarkFlagRequired("attendee")
	_ = tokenSignCmd.MarkFlagRequired("event")
	_ = tokenSignCmd.MarkFlagRequired("ticket")

	tokenCmd.AddCommand(tokenVerifyCmd, tokenSignCmd)
	rootCmd.AddCommand(tokenCmd)
}
