package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/campaign"
	"github.com/sells-group/outreach-cli/internal/model"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Create, start, and inspect outreach campaigns",
}

var (
	campaignName       string
	campaignSubject    string
	campaignBody       string
	campaignBodyFile   string
	campaignCompanyIDs []string
	campaignCategory   string
	campaignEnriched   bool
	campaignLocation   string
	campaignMaxCount   int
)

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft campaign over a set of companies",
	Long: `Create a campaign from a message template and a target set. Targets
are either explicit company IDs or a filter (category, enriched-only,
location substring, max count). One pending thread is created per
company.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("campaign"); err != nil {
			return err
		}

		body := campaignBody
		if campaignBodyFile != "" {
			data, err := os.ReadFile(campaignBodyFile)
			if err != nil {
				return eris.Wrapf(err, "read body file %s", campaignBodyFile)
			}
			body = string(data)
		}
		if body == "" {
			return eris.New("either --body or --body-file is required")
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

		c, err := m.Create(ctx, campaignName, campaign.Template{
			Subject: campaignSubject,
			Body:    body,
		}, campaignCompanyIDs, model.CompanyFilter{
			Category:     campaignCategory,
			EnrichedOnly: campaignEnriched,
			Location:     campaignLocation,
			MaxCount:     campaignMaxCount,
		})
		if err != nil {
			return err
		}

		fmt.Printf("campaign %s created (%d companies, status %s)\n", c.ID, c.CompanyCount, c.Status)
		return nil
	},
}

var campaignStartCmd = &cobra.Command{
	Use:   "start <campaign-id>",
	Short: "Send the initial email for every unsent thread",
	Args:  cobra.ExactArgs(1),
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

		summary, err := m.Start(ctx, args[0])
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		campaigns, err := st.ListCampaigns(ctx)
		if err != nil {
			return err
		}
		return printJSON(campaigns)
	},
}

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignName, "name", "", "campaign name (required)")
	campaignCreateCmd.Flags().StringVar(&campaignSubject, "subject", "", "email subject template (required)")
	campaignCreateCmd.Flags().StringVar(&campaignBody, "body", "", "email body template")
	campaignCreateCmd.Flags().StringVar(&campaignBodyFile, "body-file", "", "file containing the email body template")
	campaignCreateCmd.Flags().StringSliceVar(&campaignCompanyIDs, "company-ids", nil, "explicit company IDs (overrides filter flags)")
	campaignCreateCmd.Flags().StringVar(&campaignCategory, "category", "", "filter: company category")
	campaignCreateCmd.Flags().BoolVar(&campaignEnriched, "enriched-only", false, "filter: only enriched companies")
	campaignCreateCmd.Flags().StringVar(&campaignLocation, "location", "", "filter: address substring")
	campaignCreateCmd.Flags().IntVar(&campaignMaxCount, "max", 0, "filter: max companies")
	_ = campaignCreateCmd.MarkFlagRequired("name")
	_ = campaignCreateCmd.MarkFlagRequired("subject")

	campaignCmd.AddCommand(campaignCreateCmd, campaignStartCmd, campaignListCmd)
	rootCmd.AddCommand(campaignCmd)
}
