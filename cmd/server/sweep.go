// cmd/server/sweep.go
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/localgov/planning-backoffice/internal/database"
	"github.com/localgov/planning-backoffice/internal/router"
)

// newSweepCmd runs one auto-approval pass, for use from cron.
func newSweepCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Auto-approve overdue validation requests once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer database.Close(db)

			calculator, err := newCalculator(cfg)
			if err != nil {
				return err
			}
			svc, err := router.NewServices(db, cfg, calculator)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if dryRun {
				overdue, err := svc.Sweeper.Overdue()
				if err != nil {
					return err
				}
				return enc.Encode(overdue)
			}

			// Deliver notifications inline; the process exits straight after
			svc.Notifications.Start(cmd.Context())
			result, err := svc.Sweeper.Sweep(cmd.Context())
			svc.Notifications.Stop()
			if err != nil {
				return err
			}
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list overdue requests without approving them")
	return cmd
}
