package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape cycle and print its report",
	Long:  "Fetches every source once, stores the normalized contests, runs the discussion backfill and prints the cycle report as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report := a.orchestrator.RunCycle(ctx)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
		if failed := report.Failed(); len(failed) == len(report.Sources) && len(failed) > 0 {
			return fmt.Errorf("every source failed: %v", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
