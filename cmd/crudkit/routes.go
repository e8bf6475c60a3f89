package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/artpar/crudkit/config"
	"github.com/artpar/crudkit/core/routebuilder"
	"github.com/spf13/cobra"
)

var routesJSON bool

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes generated from the entities file",
	Long: `List the routes the server generates for each entity.

Only ENTITIES_FILE (or --entities) is read; the server is not started.

Examples:
  crudkit routes
  crudkit routes --json`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "output as JSON")
}

type routeRow struct {
	Entity  string   `json:"entity"`
	Route   string   `json:"route"`
	Method  string   `json:"method"`
	Pattern string   `json:"pattern"`
	Before  []string `json:"before,omitempty"`
	After   []string `json:"after,omitempty"`
}

func runRoutes(cmd *cobra.Command, args []string) error {
	path := entitiesFile
	if path == "" {
		path = config.DefaultEntitiesFile
		if cfg, err := config.Load(envFiles...); err == nil {
			path = cfg.EntitiesFile
		}
	}

	descs, err := config.LoadEntities(path)
	if err != nil {
		return err
	}

	var rows []routeRow
	for _, d := range descs {
		for _, info := range routebuilder.Describe(d) {
			key := info.Route.String()
			rows = append(rows, routeRow{
				Entity:  d.Name,
				Route:   key,
				Method:  info.Method,
				Pattern: info.Pattern,
				Before:  d.Hooks.Before[key],
				After:   d.Hooks.After[key],
			})
		}
	}

	out := cmd.OutOrStdout()
	if routesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No routes.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tMETHOD\tPATTERN\tROUTE\tHOOKS")
	for _, r := range rows {
		hooks := len(r.Before) + len(r.After)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.Entity, r.Method, r.Pattern, r.Route, hooks)
	}
	return w.Flush()
}
