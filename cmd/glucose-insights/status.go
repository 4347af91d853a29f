package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
)

const nightscoutTimeout = 10 * time.Second

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored outcomes, insights and the current reading",
	Long: `Display the most recent learning outcomes and insight bundles from storage
and, when a Nightscout server is configured, the current glucose reading.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStatus(cmd)
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 5, "Number of stored records to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	var report statusReport

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()

		if report.Outcomes, err = store.RecentOutcomes(ctx, statusLimit); err != nil {
			return err
		}
		if report.Insights, err = store.RecentInsights(ctx, statusLimit); err != nil {
			return err
		}
	} else {
		appLogger.Info("storage disabled, no history available")
	}

	if cfg.NightscoutConfigured() {
		client, err := newNightscoutClient()
		if err != nil {
			return err
		}
		nsCtx, cancel := context.WithTimeout(ctx, nightscoutTimeout)
		defer cancel()

		// The stored history is still useful without a live server
		if server, err := client.GetStatus(nsCtx); err != nil {
			appLogger.Warn("fetching server status failed", "error", err)
		} else {
			report.Server = server
		}
		if entry, err := client.GetCurrentEntry(nsCtx); err != nil {
			appLogger.Warn("fetching current entry failed", "error", err)
		} else {
			report.Current = entry
		}
	}

	return writeOutput(cmd.OutOrStdout(), output, report, func(w io.Writer) {
		printStatus(w, report, cfg.Unit)
	})
}
