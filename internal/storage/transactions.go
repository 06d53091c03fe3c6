package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/google/uuid"
)

// TransactionFilter narrows GetTransactions. Zero values mean no restriction.
type TransactionFilter struct {
	From       *time.Time
	To         *time.Time
	Band       model.Band
	Limit      int
	Unreviewed bool
}

const transactionColumns = `
	id, fingerprint, sms_sender, bank_code, bank_name, amount,
	raw_merchant, normalized_merchant, transaction_date, transaction_type,
	is_debit, reference_number, raw_sms_body, confidence_score,
	confidence_breakdown, category, category_confidence, reviewed, created_at`

// SaveTransactions stores transactions, skipping any whose fingerprint is
// already present. It returns how many rows were inserted.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.StoredTransaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = s.saveTransactionsTx(ctx, tx, transactions)
		return err
	})
	if err != nil {
		return 0, err
	}

	common.LogDebug("Saved transactions", common.Fields{
		"received": len(transactions),
		"inserted": inserted,
	})
	return inserted, nil
}

func (s *SQLiteStorage) saveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.StoredTransaction) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, fingerprint, sms_sender, bank_code, bank_name, amount,
			raw_merchant, normalized_merchant, transaction_date, transaction_type,
			is_debit, reference_number, raw_sms_body, confidence_score,
			confidence_breakdown, review_band, category, category_confidence, reviewed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i := range transactions {
		txn := &transactions[i]
		if txn.ID == "" {
			txn.ID = uuid.NewString()
		}
		if txn.Fingerprint == "" {
			txn.Fingerprint = txn.GenerateFingerprint()
		}

		breakdown, err := json.Marshal(txn.Confidence.Breakdown)
		if err != nil {
			return 0, fmt.Errorf("failed to encode confidence breakdown: %w", err)
		}

		result, err := stmt.ExecContext(ctx,
			txn.ID,
			txn.Fingerprint,
			txn.Sender,
			txn.BankCode,
			txn.BankName,
			txn.Amount,
			txn.RawMerchant,
			txn.NormalizedMerchant,
			txn.Date.UTC(),
			string(txn.Type),
			txn.IsDebit,
			txn.ReferenceNumber,
			txn.RawBody,
			txn.Confidence.Overall,
			string(breakdown),
			string(txn.Band()),
			txn.Category,
			txn.CategoryConfidence,
			txn.Reviewed,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.Fingerprint, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}

	return inserted, nil
}

// GetTransactions returns stored transactions, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.StoredTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.To, *filter.From)
	}

	var (
		where []string
		args  []any
	)
	if filter.From != nil {
		where = append(where, "transaction_date >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where = append(where, "transaction_date <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Band != "" {
		where = append(where, "review_band = ?")
		args = append(args, string(filter.Band))
	}
	if filter.Unreviewed {
		where = append(where, "reviewed = 0")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date DESC, created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryTransactions(ctx, s.db, query, args...)
}

// GetTransactionByFingerprint returns the transaction with the given fingerprint.
func (s *SQLiteStorage) GetTransactionByFingerprint(ctx context.Context, fingerprint string) (*model.StoredTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return nil, err
	}
	return s.getTransactionTx(ctx, s.db, "fingerprint", fingerprint)
}

// GetTransactionByID returns the transaction with the given ID.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.StoredTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransactionTx(ctx, s.db, "id", id)
}

func (s *SQLiteStorage) getTransactionTx(ctx context.Context, q queryable, column, value string) (*model.StoredTransaction, error) {
	txns, err := s.queryTransactions(ctx, q,
		"SELECT "+transactionColumns+" FROM transactions WHERE "+column+" = ?", value)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, fmt.Errorf("transaction %s %q: %w", column, value, common.ErrNotFound)
	}
	return &txns[0], nil
}

// CountTransactions returns the number of stored transactions.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// MarkReviewed flags a transaction as reviewed, optionally recategorizing it.
func (s *SQLiteStorage) MarkReviewed(ctx context.Context, id, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	query := "UPDATE transactions SET reviewed = 1 WHERE id = ?"
	args := []any{id}
	if category != "" {
		query = "UPDATE transactions SET reviewed = 1, category = ?, category_confidence = 100 WHERE id = ?"
		args = []any{category, id}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reviewed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %q: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, q queryable, query string, args ...any) ([]model.StoredTransaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.StoredTransaction
	for rows.Next() {
		var (
			txn       model.StoredTransaction
			bankCode  sql.NullString
			breakdown sql.NullString
			category  sql.NullString
			txnType   string
		)
		err := rows.Scan(
			&txn.ID,
			&txn.Fingerprint,
			&txn.Sender,
			&bankCode,
			&txn.BankName,
			&txn.Amount,
			&txn.RawMerchant,
			&txn.NormalizedMerchant,
			&txn.Date,
			&txnType,
			&txn.IsDebit,
			&txn.ReferenceNumber,
			&txn.RawBody,
			&txn.Confidence.Overall,
			&breakdown,
			&category,
			&txn.CategoryConfidence,
			&txn.Reviewed,
			&txn.ImportedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.BankCode = bankCode.String
		txn.Category = category.String
		txn.Type = model.TransactionType(txnType)
		if breakdown.Valid && breakdown.String != "" {
			if err := json.Unmarshal([]byte(breakdown.String), &txn.Confidence.Breakdown); err != nil {
				return nil, fmt.Errorf("failed to decode confidence breakdown for %s: %w", txn.ID, err)
			}
		}

		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
