// cmd/server/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/localgov/planning-backoffice/internal/database"
	"github.com/localgov/planning-backoffice/internal/i18n"
	"github.com/localgov/planning-backoffice/internal/middleware"
	"github.com/localgov/planning-backoffice/internal/router"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, notification workers and the auto-approval sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer database.Close(db)

			if migrate {
				if err := database.RunMigrations(db); err != nil {
					return err
				}
			}

			if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
				return fmt.Errorf("failed to initialize i18n: %w", err)
			}

			calculator, err := newCalculator(cfg)
			if err != nil {
				return err
			}
			svc, err := router.NewServices(db, cfg, calculator)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc.Notifications.Start(ctx)
			defer svc.Notifications.Stop()
			middleware.StartRateLimitCleanup(ctx)

			if cfg.Workflow.SweepIntervalSeconds > 0 {
				interval := time.Duration(cfg.Workflow.SweepIntervalSeconds) * time.Second
				go svc.Sweeper.Run(ctx, interval)
				logrus.WithField("interval", interval.String()).Info("Auto-approval sweeper started")
			}

			if cfg.Environment == "production" {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
				Handler:      router.Initialize(svc, cfg),
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("port", cfg.Server.Port).Info("Starting server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("failed to start server: %w", err)
				}
			case <-ctx.Done():
			}
			logrus.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logrus.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "run database migrations before serving")
	return cmd
}
