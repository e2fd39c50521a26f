package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadengine/instance-sync/database"
	"github.com/leadengine/instance-sync/internal/logger"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Revert schema migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Revert the latest migration
  instance-sync migrate down --config config.yaml --num-steps 1 --yes

  # Revert everything (destroys all data)
  instance-sync migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	db, connString, err := migrationTarget(cmd)
	if err != nil {
		return err
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	prompt := fmt.Sprintf("WARNING: This will revert %d migration(s) on %s and may lose data. Continue?",
		numSteps, describeTarget(db))
	if numSteps == 0 {
		prompt = fmt.Sprintf("WARNING: This will revert ALL migrations on %s and destroy all data. Continue?",
			describeTarget(db))
	}
	ok, err := confirm(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		logger.Infof("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}

	logger.Infof("Reverting database migrations...")
	if err := database.MigrateDown(connString, numSteps); err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	reportVersion(connString)
	return nil
}
