package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/storage/postgres"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the configured brand list into the database",
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

			for _, brand := range configuredBrands(cfg) {
				id, err := ts.EnsureBrand(cmd.Context(), brand)
				if err != nil {
					return err
				}
				logger.Info("brand seeded",
					zap.Int64("id", id),
					zap.String("name", brand.Name),
					zap.String("domain", brand.Domain),
				)
			}
			return nil
		},
	}
}
