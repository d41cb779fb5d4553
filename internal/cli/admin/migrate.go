package admin

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/clarify/internal/database"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply pending migrations to the database named by CLARIFY_DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			if !cfg.HasDatabase() {
				return errors.New("CLARIFY_DATABASE_URL is not set; the in-memory store needs no migrations")
			}
			return database.RunMigrations(cfg.DatabaseURL, log)
		},
	}
}
