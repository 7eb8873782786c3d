package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache maintenance",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired cache entries",
	Long: `Delete cache entries past their TTL and everything older than the
retention ceiling. Reads already skip expired entries; this reclaims
the space.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		removed, err := cache.New(st).Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d cache entries\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
