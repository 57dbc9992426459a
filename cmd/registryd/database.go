package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/config"
)

// MigrateCmd applies every pending catalog migration, matching the
// teacher's `database migrate` sub-command.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "run pending catalog migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatal(err)
		}
		store, err := catalog.Open(context.Background(), cfg.Database.Path)
		if err != nil {
			fatal(fmt.Errorf("registryd: opening catalog: %w", err))
		}
		defer store.Close()
		fmt.Println("registryd: catalog migrations up to date")
	},
}
