package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/merchwire/shopsignal/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ts, err := postgres.NewStore(cmd.Context(), postgres.Config{DSN: cfg.DB.DSN})
			if err != nil {
				return err
			}
			defer ts.Close()

			if err := ts.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema applied")
			return nil
		},
	}
}
