package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	Short:   "Archive expired channels and remind owners now",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := adminClient.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweeping: %w", err)
		}
		if jsonOutput {
			printJSON(report)
			return nil
		}
		fmt.Printf("Scanned:  %d\nExpired:  %d\nReminded: %d\nFailed:   %d\n", report.Scanned, report.Expired, report.Reminded, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d channels failed; they will be retried on the next sweep", report.Failed)
		}
		return nil
	},
}
