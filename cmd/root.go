// Package cmd defines and implements the CLI commands for the shopsignal
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/config"
	"github.com/merchwire/shopsignal/internal/logging"
	"github.com/merchwire/shopsignal/internal/store"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shopsignal",
		Short: "Storefront pricing and ads signal engine",
		Long: `shopsignal crawls configured storefront catalogs, records daily price
and ad-activity observations, and assembles the daily digest of price
movers, the brand leaderboard, and notable ad surges.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, the config file, and the logger shared by every command.
func setup() (config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func configuredBrands(cfg config.Config) []store.Brand {
	brands := make([]store.Brand, 0, len(cfg.Brands))
	for _, b := range cfg.Brands {
		brands = append(brands, store.Brand{
			Name:        b.Name,
			Domain:      b.Domain,
			Category:    b.Category,
			AdAccountID: b.AdAccountID,
		})
	}
	return brands
}
