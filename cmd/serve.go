package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/api"
	"github.com/merchwire/shopsignal/internal/digest"
	"github.com/merchwire/shopsignal/internal/logging"
	signalengine "github.com/merchwire/shopsignal/internal/signal"
	"github.com/merchwire/shopsignal/internal/storage/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only ops API",
		Long: `Starts the HTTP server exposing health, Prometheus metrics, and the
assembled digest for a date at /v1/digest/{date}.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ts, err := postgres.NewStore(cmd.Context(), postgres.Config{
				DSN:      cfg.DB.DSN,
				MaxConns: cfg.DB.MaxConns,
				MinConns: cfg.DB.MinConns,
			})
			if err != nil {
				return err
			}
			defer ts.Close()

			engine := signalengine.NewEngine(signalengine.Config{
				MoverThreshold:    cfg.Signals.MoverThreshold,
				AdSurgeMultiplier: cfg.Signals.AdSurgeMultiplier,
				AdSurgeMinDelta:   cfg.Signals.AdSurgeMinDelta,
			})
			assembler := digest.NewAssembler(ts, engine, logging.Named(logger, "digest"))
			server := api.NewServer(assembler, logging.Named(logger, "api"))

			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("ops server listening", zap.String("addr", httpServer.Addr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("ops server stopped")
			return nil
		},
	}
}
