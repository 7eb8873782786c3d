package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich scraped companies with structured profiles",
	Long: `Run the next enrichment batch: companies with enough scraped
website content and no profile yet are sent through the model and get a
structured profile (industry, size, services, pain points).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		costs := newCostTracker()
		e := enrich.New(st, cache.New(st), anthropic.NewClient(cfg.Anthropic.Key), costs, enrich.Config{
			Model:         cfg.Anthropic.Model,
			MaxTokens:     int64(cfg.Anthropic.MaxTokens),
			Concurrency:   cfg.Enrich.Concurrency,
			BatchLimit:    cfg.Enrich.BatchLimit,
			MinContentLen: cfg.Scrape.MinContentLen,
		})

		summary, err := e.Run(ctx)
		if err != nil {
			return err
		}

		printSummary(summary)
		spend := costs.Snapshot()
		fmt.Printf("model calls: %d, tokens in/out: %d/%d, spend: $%.4f\n",
			spend.ModelCalls, spend.InputTokens, spend.OutputTokens, spend.EnrichmentUSD)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
