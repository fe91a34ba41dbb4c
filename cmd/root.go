// Package cmd defines the CLI commands for the capture executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Scheduled capture service for the Kingo academic affairs site.",
		Long: `capture runs scheduled scraping jobs against a session-based academic
affairs site. Operators create per-term tasks over HTTP, start them with a
credential bundle, and stop, resume, or delete them while the bounded fetch
pipeline downloads and persists one artifact per course.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./capture.yaml)")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
