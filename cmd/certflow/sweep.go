package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder and expiry sweep and print its report",
		Long: `Run every sweep job once at the given logical time and print the
report as JSON. Intended for cron; exits non-zero when any record failed.

Examples:
  certflow sweep
  certflow sweep --at 2026-05-01T00:00:00Z`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t.UTC()
			}
			return runSweep(cmd.Context(), now)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "logical sweep time (RFC3339), defaults to now")
	return cmd
}

func runSweep(ctx context.Context, now time.Time) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	report, err := a.scheduler.RunSweep(ctx, now)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if n := report.Failures(); n > 0 {
		return fmt.Errorf("sweep %s finished with %d failures", report.SweepID, n)
	}
	return nil
}
