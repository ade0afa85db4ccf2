package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/config"
	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server.

The server opens the embedded record store, starts the pipeline
scheduler, and serves the upload and retrieval APIs. Shutting down
(via Ctrl+C or SIGTERM) drains in-flight extraction runs first.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes store status)

Examples:
  folio serve                          # Start with ~/.folio/config.yaml
  folio serve --config ./config.yaml   # Start with a custom config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Load configuration with hot-reload support
		cfgPath := cfgFile
		if cfgPath == "" && h.ConfigExists() {
			cfgPath = h.ConfigPath()
		}
		cfgMgr, err := config.NewManager(cfgPath)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		// Create server
		srv, err := server.New(server.Config{
			ConfigManager: cfgMgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
