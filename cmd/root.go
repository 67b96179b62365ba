package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when connectorrt is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:          "connectorrt",
	Short:        "Run the user-scoped OAuth connector runtime",
	Long:         `connectorrt serves per-user OAuth connectors and their discovered tools to an agent runtime.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected from main at
// build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "connectorrt version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}
