package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Run the follow-up scheduler sweep",
	Long: `Send the next follow-up for every thread whose next-follow-up time
has elapsed, then close out aged threads and campaigns. Intended to run
on a schedule (cron or similar).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("campaign"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		m, err := newCampaignManager(st)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		summary, err := m.RunFollowUps(ctx, now)
		if summary != nil {
			printSummary(summary)
		}
		if err != nil {
			return err
		}

		threads, campaigns, err := m.CompleteAged(ctx, now)
		if err != nil {
			return err
		}
		fmt.Printf("aged out: %d threads, %d campaigns\n", threads, campaigns)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(followupsCmd)
}
