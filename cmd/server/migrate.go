// cmd/server/migrate.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/localgov/planning-backoffice/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var (
		adminEmail    string
		adminPassword string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.RunMigrations(db); err != nil {
				return err
			}
			if adminEmail == "" || adminPassword == "" {
				return nil
			}
			return database.SeedInitialData(db, adminEmail, adminPassword)
		},
	}

	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "create this administrator when none exists")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for --admin-email")
	return cmd
}
