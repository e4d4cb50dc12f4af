// Package cmd defines and implements the CLI commands for the geoharvest
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geoharvest",
		Short: "Harvests geoscience documents from a paginated public catalog.",
		Long: `geoharvest drives a headless browser through a form-fronted document
catalog, walks every listing page, and deposits each allowlisted document
into durable storage exactly once. Progress is persisted between runs, so
an interrupted harvest resumes where it stopped.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml)")

	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "geoharvest: %v\n", err)
		os.Exit(1)
	}
}
