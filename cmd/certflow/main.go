// certflow runs the certification lifecycle engine.
//
// Usage:
//
//	certflow serve                     # HTTP API, /metrics, periodic sweeps
//	certflow sweep --at 2026-05-01T00:00:00Z
//	certflow token --user <uuid>       # development bearer token
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version     = "dev"
	catalogPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "certflow",
		Short:   "Certification lifecycle engine",
		Version: version,
		Long: `certflow tracks candidates through certification processes, assigns
evaluators, issues certificates and runs the periodic reminder and
expiry sweep.

Configuration is read from CERTFLOW_* environment variables, optionally
seeded by a .env file.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "JSON file with competencies, evaluators and managers to load at start")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
