package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/scrape"
	"github.com/sells-group/outreach-cli/pkg/serp"
)

var (
	scrapeQuery    string
	scrapeLocation string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Discover businesses and scrape their websites",
	Long: `Search a business directory for a query and location, store the
discovered companies (deduplicated across runs), and extract contact
emails and page content from their websites.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		search := serp.NewClient(cfg.Serp.Key,
			serp.WithBaseURL(cfg.Serp.BaseURL),
			serp.WithEngine(cfg.Serp.Engine),
			serp.WithMaxPages(cfg.Serp.MaxPages),
			serp.WithRateLimit(cfg.Serp.RequestsPerSec),
		)
		costs := newCostTracker()

		s := scrape.New(st, cache.New(st), search, costs, cfg.Scrape)
		summary, err := s.Run(ctx, scrapeQuery, scrapeLocation)
		if err != nil {
			return err
		}

		printSummary(summary)
		spend := costs.Snapshot()
		fmt.Printf("search queries: %d, spend: $%.4f\n", spend.SearchQueries, spend.SearchUSD)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeQuery, "query", "q", "", "business type to search for (required)")
	scrapeCmd.Flags().StringVarP(&scrapeLocation, "location", "l", "", "location to search in (required)")
	_ = scrapeCmd.MarkFlagRequired("query")
	_ = scrapeCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(scrapeCmd)
}
