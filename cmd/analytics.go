package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/analytics"
)

var analyticsDay string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Daily outreach metrics",
}

func parseDay() (time.Time, error) {
	if analyticsDay == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse("2006-01-02", analyticsDay)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid --day %q (want YYYY-MM-DD)", analyticsDay)
	}
	return day.UTC(), nil
}

var analyticsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute and persist metrics for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day, err := parseDay()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := analytics.New(st).PersistDay(ctx, day)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var analyticsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored metrics for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day, err := parseDay()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		metrics, err := analytics.New(st).LoadDay(ctx, day)
		if err != nil {
			return err
		}
		return printJSON(metrics)
	},
}

func init() {
	analyticsCmd.PersistentFlags().StringVar(&analyticsDay, "day", "", "UTC day as YYYY-MM-DD (default today)")
	analyticsCmd.AddCommand(analyticsRunCmd, analyticsShowCmd)
	rootCmd.AddCommand(analyticsCmd)
}
