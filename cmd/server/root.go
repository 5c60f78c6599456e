// cmd/server/root.go
package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/database"
	"github.com/localgov/planning-backoffice/internal/deadline"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "planning-backoffice",
		Short:         "Planning application validation and review back office",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newSweepCmd())
	return cmd
}

// bootstrap loads configuration, sets up logging and connects to the database.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, db, nil
}

// newCalculator builds the working-day calendar from the configured timezone
// and holiday file.
func newCalculator(cfg *config.Config) (*deadline.Calculator, error) {
	loc, err := time.LoadLocation(cfg.Workflow.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKFLOW_TIMEZONE %q: %w", cfg.Workflow.Timezone, err)
	}

	holidays, err := config.LoadHolidays(cfg.Workflow.HolidaysFile)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(holidays))
	for _, h := range holidays {
		dates = append(dates, h.Date)
	}

	logrus.WithFields(logrus.Fields{
		"timezone": loc.String(),
		"holidays": len(dates),
	}).Debug("Working-day calendar loaded")

	return deadline.NewCalculator(deadline.NewCalendar(loc, dates...), cfg.Workflow.DefaultResponseDays), nil
}
