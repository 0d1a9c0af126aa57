package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "callisto",
	Short: "Callisto - rule-based revenue cycle automation engine",
	Long: `Callisto is a rule-based automation engine for revenue cycle workflows.

It evaluates configurable rules against claims, accounts, and denials,
providing:
  - Trigger-driven rule selection (create, update, status change, schedule)
  - AND/OR condition trees with twenty comparison operators
  - Ordered action chains (field updates, work queues, tasks, notifications)
  - A persistent audit trail of every rule execution
  - Prometheus metrics and health probes`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
