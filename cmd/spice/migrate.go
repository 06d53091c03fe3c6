package main

import (
	"fmt"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for the application to function properly.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return common.NewUserError("Failed to open database", err)
	}
	defer closeStorage(store)

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		writeln(out, cli.FormatTitle(cli.ChartIcon+" Database Migration Status"))
		writef(out, "Database:        %s\n", settings.DatabasePath)
		writef(out, "Current version: %d\n", current)
		writef(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
		for _, m := range storage.PendingMigrations(current) {
			writef(out, "  pending %d: %s\n", m.Version, m.Description)
		}
		return nil
	}

	pending := storage.PendingMigrations(current)
	if len(pending) == 0 {
		writeln(out, cli.FormatSuccess(fmt.Sprintf("Database is up to date (version %d)", current)))
		return nil
	}

	writeln(out, cli.FormatInfo(fmt.Sprintf("Applying %d migrations to %s", len(pending), settings.DatabasePath)))
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	writeln(out, cli.FormatSuccess(fmt.Sprintf("Database migrated to version %d", storage.ExpectedSchemaVersion)))
	return nil
}
