package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/crudkit/bootstrap"
	"github.com/artpar/crudkit/config"
	"github.com/artpar/crudkit/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var validateCheckStore bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the environment and the entities file.

Checks:
  - Required environment variables are present and well formed
  - The entities file parses and every entity is valid
  - The store is reachable (optional)

Examples:
  crudkit validate
  crudkit validate --check-store --entities api/entities.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckStore, "check-store", false, "check that the store is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  %s Environment valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Environment valid (%s, port %d)\n", checkMark, cfg.Env, cfg.Port)

	kind, err := bootstrap.StoreKind(cfg.DBURI)
	if err != nil {
		fmt.Fprintf(out, "  %s Store URI\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Store: %s\n", checkMark, kind)

	if _, err := os.Stat(cfg.EntitiesFile); err != nil {
		fmt.Fprintf(out, "  %s Entities file exists\n", crossMark)
		return fmt.Errorf("entities file not found: %s", cfg.EntitiesFile)
	}
	descs, err := config.LoadEntities(cfg.EntitiesFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Entities valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Entities: %d in %s\n", checkMark, len(descs), cfg.EntitiesFile)

	if validateCheckStore {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		names, err := checkStore(ctx, cfg)
		switch {
		case err != nil:
			fmt.Fprintf(out, "  %s Store reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		case names != nil:
			fmt.Fprintf(out, "  %s Store reachable (collections: %d)\n", checkMark, len(names))
		default:
			fmt.Fprintf(out, "  %s Store reachable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

// checkStore pings the store and, when it can enumerate them, returns its
// existing collections.
func checkStore(ctx context.Context, cfg *config.Config) ([]string, error) {
	store, err := bootstrap.OpenStore(ctx, cfg.DBURI, cfg.DBName, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	defer store.Close(context.Background())
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}

	lister, ok := store.(ports.CollectionLister)
	if !ok {
		return nil, nil
	}
	names, err := lister.Collections(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
