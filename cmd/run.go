package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/ads"
	"github.com/merchwire/shopsignal/internal/clock"
	"github.com/merchwire/shopsignal/internal/config"
	"github.com/merchwire/shopsignal/internal/crawler"
	"github.com/merchwire/shopsignal/internal/digest"
	"github.com/merchwire/shopsignal/internal/logging"
	"github.com/merchwire/shopsignal/internal/policy/ratelimit"
	"github.com/merchwire/shopsignal/internal/policy/retry"
	"github.com/merchwire/shopsignal/internal/signal"
	"github.com/merchwire/shopsignal/internal/storage/postgres"
)

func newRunCmd() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl every configured brand and assemble the daily digest",
		Long: `Runs one full ingestion pass: discover and fetch each configured
storefront's products, fetch ad activity where an account is configured,
persist the day's observations, and assemble the digest. The digest is
printed as JSON on stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			day := clock.Today(clock.System{}, loc)
			if dateFlag != "" {
				day, err = clock.ParseDate(dateFlag)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
			}

			ts, err := postgres.NewStore(cmd.Context(), postgres.Config{
				DSN:      cfg.DB.DSN,
				MaxConns: cfg.DB.MaxConns,
				MinConns: cfg.DB.MinConns,
			})
			if err != nil {
				return err
			}
			defer ts.Close()

			runner := buildRunner(cfg, ts, logger)
			d, err := runner.Run(cmd.Context(), day)
			if err != nil {
				return fmt.Errorf("daily run: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("encode digest: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "observation date (YYYY-MM-DD, default today in the configured zone)")
	return cmd
}

func buildRunner(cfg config.Config, ts *postgres.Store, logger *zap.Logger) *digest.Runner {
	retryPolicy := retry.New(
		retry.WithMaxAttempts(cfg.HTTP.MaxAttempts),
		retry.WithBaseDelay(cfg.BackoffBase()),
	)
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSec: cfg.Crawler.HostRatePerSec})
	robots := crawler.NewRobotsGate(cfg.Crawler.UserAgent, retryPolicy, logging.Named(logger, "robots"))
	cache := crawler.NewETagCache(cfg.Crawler.CachePath, logging.Named(logger, "etag-cache"))

	shopify := crawler.NewShopifyClient(
		crawler.Config{
			UserAgent:       cfg.Crawler.UserAgent,
			Concurrency:     cfg.Crawler.Concurrency,
			MaxCatalogPages: cfg.Crawler.MaxCatalogPages,
			Timeout:         cfg.Timeout(),
		},
		limiter,
		robots,
		retryPolicy,
		cache,
		logging.Named(logger, "crawler"),
	)

	var adSource digest.AdSource
	if cfg.Ads.Token != "" {
		adSource = ads.NewClient(
			ads.Config{
				Endpoint: cfg.Ads.Endpoint,
				Token:    cfg.Ads.Token,
				AdType:   cfg.Ads.AdType,
				Limit:    cfg.Ads.Limit,
				Timeout:  cfg.Timeout(),
			},
			retryPolicy,
			logging.Named(logger, "ads"),
		)
	} else {
		logger.Info("no ads token configured, skipping ad ingestion")
	}

	engine := signal.NewEngine(signal.Config{
		MoverThreshold:    cfg.Signals.MoverThreshold,
		AdSurgeMultiplier: cfg.Signals.AdSurgeMultiplier,
		AdSurgeMinDelta:   cfg.Signals.AdSurgeMinDelta,
	})
	assembler := digest.NewAssembler(ts, engine, logging.Named(logger, "digest"))

	return digest.NewRunner(
		configuredBrands(cfg),
		shopify,
		adSource,
		ts,
		assembler,
		clock.System{},
		logging.Named(logger, "runner"),
	)
}
