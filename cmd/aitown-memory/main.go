// Command aitown-memory is an operator CLI for agent long-term memory. It
// adds and retrieves memories, records dialogue, and triggers conversation
// summaries and reflections against the configured stores and providers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aitown-memory",
		Short:         "Long-term memory for simulated agents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file (default: $AITOWN_CONFIG)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		addCmd(),
		searchCmd(),
		accessCmd(),
		sayCmd(),
		rememberCmd(),
		reflectCmd(),
		snapshotCmd(),
		configCmd(),
	)
	return root
}
