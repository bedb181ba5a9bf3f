package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cityair/conductor/internal/config"
	"github.com/cityair/conductor/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies any unapplied schema migrations to the configured database.
The serve and mcp commands migrate on startup; this command exists for
deployments that migrate as a separate step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := newLogger()
		if err := database.Migrate(cfg.PostgresURL(), logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("database schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
