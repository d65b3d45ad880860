package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dairyops/internal/identity"
	"dairyops/internal/server"
	"dairyops/internal/store"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		Long:  `Open the database, apply migrations and serve the API until SIGINT or SIGTERM.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			// Parsing of the command line is done so silence cmd usage
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&c.cfg.Addr, "addr", c.cfg.Addr, "listen address (env DAIRY_ADDR or PORT)")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	db, err := c.openDB(true)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.cfg.WebhookSecret == "" {
		c.log.Warn("webhook secret is empty; payment webhook will answer 500")
	}

	api := &server.API{
		Store:         store.NewSQLStore(db, c.cfg.DBDriver, clock.NewClock()),
		Identity:      identity.NewClient(c.cfg.IdentityURL, c.cfg.IdentityKey),
		WebhookSecret: c.cfg.WebhookSecret,
		Log:           c.log,
	}
	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info("listening", zap.String("addr", c.cfg.Addr), zap.String("db_driver", c.cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
		c.log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	c.log.Info("server shut down gracefully")
	return nil
}
