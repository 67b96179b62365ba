package cmd

import (
	"context"
	"fmt"

	"github.com/sambanova-oss/connectorrt/internal/app"

	"github.com/spf13/cobra"
)

var (
	serveDebug      bool
	serveConfigPath string
)

// serveCmd starts the connector runtime's HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the connector runtime HTTP server",
	Long: `Starts the connector runtime: loads provider configuration, connects to the
credential store, and serves the /connectors HTTP surface until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.New(app.Options{
		ConfigPath: serveConfigPath,
		Debug:      serveDebug,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Path to the YAML configuration file")
}
