package main

import (
	"fmt"
	"os"

	"github.com/artpar/crudkit/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFiles     []string
	entitiesFile string
)

var rootCmd = &cobra.Command{
	Use:   "crudkit",
	Short: "REST CRUD API server generated from entity definitions",
	Long: `crudkit serves REST CRUD endpoints for the entities declared in an
entities file, backed by MongoDB, SQLite or an in-memory store.

Configuration comes from the environment (and .env files):
  PORT            - listen port (required)
  NODE_ENV        - development, test or production (required)
  DB_URI          - mongodb://, sqlite://, file: or memory:// (required)
  ENTITIES_FILE   - entity definitions (default: entities.yaml)

Quick start:
  crudkit validate  # Check the environment and the entities file
  crudkit routes    # List the generated routes
  crudkit serve     # Start the server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&entitiesFile, "entities", "e", "", "entities file (overrides ENTITIES_FILE)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if entitiesFile != "" {
		cfg.EntitiesFile = entitiesFile
	}
	return cfg, nil
}
