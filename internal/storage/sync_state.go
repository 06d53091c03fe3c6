package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-sms/internal/model"
)

// GetSyncState returns the import progress. A database that has never been
// synced reports an idle state with zero counters.
func (s *SQLiteStorage) GetSyncState(ctx context.Context) (*model.SyncState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		state        model.SyncState
		status       string
		lastFullSync sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sms_timestamp, total_transactions, total_skipped, last_full_sync, status, updated_at
		FROM sync_state
		WHERE id = 1
	`).Scan(
		&state.LastSMSTimestamp,
		&state.TotalTransactions,
		&state.TotalSkipped,
		&lastFullSync,
		&status,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.SyncState{Status: model.SyncStatusIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	state.Status = model.SyncStatus(status)
	if lastFullSync.Valid {
		state.LastFullSync = lastFullSync.Time
	}
	return &state, nil
}

// SaveSyncState replaces the stored import progress.
func (s *SQLiteStorage) SaveSyncState(ctx context.Context, state *model.SyncState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSyncState(state); err != nil {
		return err
	}

	state.UpdatedAt = time.Now().UTC()
	var lastFullSync any
	if !state.LastFullSync.IsZero() {
		lastFullSync = state.LastFullSync.UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (id, last_sms_timestamp, total_transactions, total_skipped, last_full_sync, status, updated_at)
			VALUES (1, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_sms_timestamp = excluded.last_sms_timestamp,
				total_transactions = excluded.total_transactions,
				total_skipped = excluded.total_skipped,
				last_full_sync = excluded.last_full_sync,
				status = excluded.status,
				updated_at = excluded.updated_at
		`, state.LastSMSTimestamp, state.TotalTransactions, state.TotalSkipped,
			lastFullSync, string(state.Status), state.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save sync state: %w", err)
		}
		return nil
	})
}
