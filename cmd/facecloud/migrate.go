package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/facecloud/internal/repo"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			db, err := repo.Open(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := repo.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables (%s)\n", len(repo.Models()), cfg.DBDriver)
			return nil
		},
	}
}
