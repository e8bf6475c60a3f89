package main

import (
	"fmt"

	"github.com/artpar/crudkit/bootstrap"
	"github.com/spf13/cobra"
)

var watchEntities bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the crudkit API server.

The server will:
  - Connect to the store selected by DB_URI (a failure is fatal)
  - Generate routes for every entity in the entities file
  - Reload the entities on file change or SIGHUP when watching is on
  - Shut down gracefully on SIGINT or SIGTERM

Examples:
  crudkit serve
  crudkit serve --entities api/entities.yaml --watch
  PORT=8080 NODE_ENV=production DB_URI=mongodb://localhost/app crudkit serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&watchEntities, "watch", false, "reload the entities file on change (default on in development)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("watch") {
		cfg.EntitiesWatch = watchEntities
	}

	app, err := bootstrap.New(cmd.Context(), bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// Run blocks until shutdown
	return app.Run(cmd.Context())
}
