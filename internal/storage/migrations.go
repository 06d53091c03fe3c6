package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/spice-sms/internal/common"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					fingerprint TEXT UNIQUE NOT NULL,
					sms_sender TEXT NOT NULL,
					bank_code TEXT,
					bank_name TEXT NOT NULL,
					amount TEXT NOT NULL,
					raw_merchant TEXT NOT NULL,
					normalized_merchant TEXT NOT NULL,
					transaction_date DATETIME NOT NULL,
					transaction_type TEXT NOT NULL,
					is_debit INTEGER NOT NULL,
					reference_number TEXT NOT NULL,
					raw_sms_body TEXT NOT NULL,
					confidence_score REAL NOT NULL,
					confidence_breakdown TEXT,
					category TEXT,
					category_confidence INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(normalized_merchant)`,

				`CREATE TABLE IF NOT EXISTS merchant_mappings (
					alias TEXT PRIMARY KEY,
					normalized_name TEXT NOT NULL,
					display_name TEXT,
					category TEXT,
					use_count INTEGER DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS sync_state (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					last_sms_timestamp INTEGER NOT NULL DEFAULT 0,
					total_transactions INTEGER NOT NULL DEFAULT 0,
					total_skipped INTEGER NOT NULL DEFAULT 0,
					last_full_sync DATETIME,
					status TEXT NOT NULL DEFAULT 'IDLE',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add review tracking",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE transactions ADD COLUMN review_band TEXT NOT NULL DEFAULT 'manual_review'`,
				`ALTER TABLE transactions ADD COLUMN reviewed INTEGER NOT NULL DEFAULT 0`,
				`UPDATE transactions SET review_band = CASE
					WHEN confidence_score >= 0.85 THEN 'auto_accept'
					WHEN confidence_score >= 0.50 THEN 'light_review'
					ELSE 'manual_review'
				END`,
				`CREATE INDEX idx_transactions_date ON transactions(transaction_date)`,
				`CREATE INDEX idx_transactions_review ON transactions(review_band, reviewed)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Track how merchant mappings were created",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE merchant_mappings ADD COLUMN source TEXT NOT NULL DEFAULT 'MANUAL'`,
				`CREATE INDEX idx_merchant_mappings_normalized ON merchant_mappings(normalized_name)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		common.LogInfo("Applied migration", common.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
	}

	finalVersion, err := s.schemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

func (s *SQLiteStorage) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// SchemaVersion returns the schema version currently applied to the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.schemaVersion(ctx)
}

// PendingMigrations lists the migrations newer than version.
func PendingMigrations(version int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > version {
			pending = append(pending, m)
		}
	}
	return pending
}
