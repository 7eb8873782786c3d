package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Inbound reply detection",
}

var repliesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scan the inbox and mark replied threads",
	Long: `Pull inbound messages from the configured reply-scan window and
match them against companies with open threads. A matched thread stops
receiving follow-ups. Each message is applied at most once.`,
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

		since := time.Now().Add(-time.Duration(cfg.Campaign.ReplyScanWindow) * time.Hour)
		summary, err := m.SyncReplies(ctx, since)
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

func init() {
	repliesCmd.AddCommand(repliesSyncCmd)
	rootCmd.AddCommand(repliesCmd)
}
