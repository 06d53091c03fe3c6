package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the canonical direction of a parsed transaction.
type TransactionType string

const (
	// TypeDebit is money leaving the account.
	TypeDebit TransactionType = "debit"
	// TypeCredit is money entering the account.
	TypeCredit TransactionType = "credit"
)

// ParsedTransaction is a transaction extracted from one bank SMS.
type ParsedTransaction struct {
	Date               time.Time
	Amount             decimal.Decimal
	Sender             string
	RawMerchant        string
	NormalizedMerchant string
	BankCode           string
	BankName           string
	RawBody            string
	ReferenceNumber    string
	Fingerprint        string
	Type               TransactionType
	Confidence         ConfidenceScore
	IsDebit            bool
}

// GenerateFingerprint creates a deterministic identity for duplicate detection.
func (t *ParsedTransaction) GenerateFingerprint() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Amount.StringFixed(2),
		t.NormalizedMerchant,
		t.Date.UTC().Format("2006-01-02"),
		t.BankName)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// StoredTransaction is a parsed transaction as persisted, with its assigned category.
type StoredTransaction struct {
	ImportedAt time.Time
	ID         string
	Category   string
	ParsedTransaction
	CategoryConfidence int
	Reviewed           bool
}

// Band returns the review band of the stored confidence score.
func (t StoredTransaction) Band() Band {
	return t.Confidence.Band()
}
