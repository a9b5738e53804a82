package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terraskye/progression/eventstore/postgres"
	"github.com/terraskye/progression/eventstore/sqlite"
	"github.com/terraskye/progression/internal/config"
)

func migrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema migrations of the configured SQL store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			switch cfg.Store.Backend {
			case config.StoreSQLite:
				// Open migrates before connecting.
				store, err := sqlite.Open(cfg.Store.SQLitePath)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					return err
				}
			case config.StorePostgres:
				if err := postgres.Migrate(cfg.Store.PostgresURL); err != nil {
					return err
				}
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s store has no schema\n", cfg.Store.Backend)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store migrated\n", cfg.Store.Backend)
			return nil
		},
	}
}
