package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/campaign"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "outreach-cli",
	Short: "Business lead discovery and email outreach pipeline",
	Long:  "Scrapes business directories, extracts contact emails from websites, enriches company profiles via Claude, and runs multi-week drip campaigns through Gmail with reply detection.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured persistence backend.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "postgres" {
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	}
	return store.NewSQLite(cfg.Store.DatabaseURL)
}

func newCostTracker() *cost.Tracker {
	return cost.NewTracker(cost.NewCalculator(cfg.Pricing))
}

func gmailOAuthConfig() gmail.OAuthConfig {
	return gmail.OAuthConfig{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RedirectURL:  cfg.Gmail.RedirectURL,
	}
}

// mailboxFactory builds Gmail mailboxes per account, persisting
// refreshed tokens back to the store.
func mailboxFactory(st store.Store) campaign.MailboxFactory {
	return func(ctx context.Context, account *model.EmailAccount) (gmail.Mailbox, error) {
		onRefresh := func(tok *oauth2.Token) {
			data, err := gmail.MarshalToken(tok)
			if err != nil {
				zap.L().Warn("token marshal failed", zap.String("account_id", account.ID), zap.Error(err))
				return
			}
			if err := st.UpdateAccountTokens(ctx, account.ID, data); err != nil {
				zap.L().Warn("token persist failed", zap.String("account_id", account.ID), zap.Error(err))
			}
		}
		ts, err := gmail.TokenSource(ctx, gmailOAuthConfig(), account.OAuthTokens, onRefresh)
		if err != nil {
			return nil, err
		}
		return gmail.NewMailbox(ctx, ts)
	}
}

func newCampaignManager(st store.Store) (*campaign.Manager, error) {
	variants, err := campaign.LoadVariants(cfg.Campaign.VariantsPath)
	if err != nil {
		return nil, err
	}
	return campaign.NewManager(st, cache.New(st), mailboxFactory(st), campaign.Config{
		SendPacing: time.Duration(cfg.Campaign.SendPacingMS) * time.Millisecond,
		SweepLimit: cfg.Campaign.FollowUpLimit,
		Variants:   variants,
	}), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(summary *model.Summary) {
	fmt.Println(summary.String())
	for _, f := range summary.Failures {
		fmt.Printf("  failed %s: %s\n", f.ItemID, f.Reason)
	}
}
