package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadengine/instance-sync/database"
	"github.com/leadengine/instance-sync/internal/logger"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply pending migrations to bring the schema up to date. Connection parameters
come from the database section of the config file; the migration user is used when set.`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	db, connString, err := migrationTarget(cmd)
	if err != nil {
		return err
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	ok, err := confirm(cmd, fmt.Sprintf("Apply migrations to %s?", describeTarget(db)))
	if err != nil {
		return err
	}
	if !ok {
		logger.Infof("Migration cancelled by user")
		return nil
	}

	logger.Infof("Applying database migrations...")
	if err := database.MigrateUp(connString, numSteps); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	reportVersion(connString)
	return nil
}

func reportVersion(connString string) {
	version, dirty, err := database.GetVersion(connString)
	switch {
	case err != nil:
		logger.Warnf("Unable to get migration version: %v", err)
	case dirty:
		logger.Warnf("Database is in a dirty state at version %d", version)
	default:
		logger.Infof("Migrations complete. Current version: %d", version)
	}
}
