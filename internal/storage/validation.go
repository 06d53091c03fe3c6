// Package storage provides the SQLite persistence layer for spice-sms.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-sms/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidMapping     = errors.New("invalid merchant mapping")
	ErrInvalidSyncState   = errors.New("invalid sync state")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.StoredTransaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction enforces the invariants of a parsed transaction.
func validateTransaction(txn *model.StoredTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if !txn.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidTransaction, txn.Amount)
	}
	if strings.TrimSpace(txn.ReferenceNumber) == "" {
		return fmt.Errorf("%w: missing reference number", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Type != model.TypeDebit && txn.Type != model.TypeCredit {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, txn.Type)
	}
	if txn.Confidence.Overall < 0 || txn.Confidence.Overall > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidTransaction)
	}
	return nil
}

// validateMapping validates a merchant mapping.
func validateMapping(mapping *model.MerchantMapping) error {
	if mapping == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if strings.TrimSpace(mapping.Alias) == "" {
		return fmt.Errorf("%w: missing alias", ErrInvalidMapping)
	}
	if strings.TrimSpace(mapping.NormalizedName) == "" && strings.TrimSpace(mapping.Category) == "" {
		return fmt.Errorf("%w: needs a normalized name or a category", ErrInvalidMapping)
	}
	switch mapping.Source {
	case "", model.MappingSourceManual, model.MappingSourceReview:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidMapping, mapping.Source)
	}
	return nil
}

// validateSyncState validates sync state before it is written.
func validateSyncState(state *model.SyncState) error {
	if state == nil {
		return fmt.Errorf("%w: sync state", ErrNilParameter)
	}
	switch state.Status {
	case model.SyncStatusIdle, model.SyncStatusRunning, model.SyncStatusCompleted, model.SyncStatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSyncState, state.Status)
	}
	if state.LastSMSTimestamp < 0 || state.TotalTransactions < 0 || state.TotalSkipped < 0 {
		return fmt.Errorf("%w: counters must not be negative", ErrInvalidSyncState)
	}
	return nil
}
