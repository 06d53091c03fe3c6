// Package extract pulls transaction fields out of SMS bodies using ordered
// pattern lists, preferring bank-specific patterns over the fallback set.
package extract

import (
	"regexp"
	"strings"

	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/shopspring/decimal"
)

// Compiler returns the compiled form of a pattern. *rules.Loader implements it.
type Compiler interface {
	Pattern(pattern string) *regexp.Regexp
}

// Extractor applies rule patterns to message bodies. It is safe for concurrent use
// as long as its Compiler is.
type Extractor struct {
	compiler Compiler
}

// New creates an extractor backed by compiler.
func New(compiler Compiler) *Extractor {
	return &Extractor{compiler: compiler}
}

var merchantJunk = regexp.MustCompile(`[^A-Za-z0-9 &'\-]`)

// Field returns the trimmed capture of the first pattern that matches body.
func (e *Extractor) Field(body string, patterns []string) (string, bool) {
	return firstMatch(e, body, identity, patterns)
}

// Amount extracts a positive decimal amount.
func (e *Extractor) Amount(body string, bank *model.BankRule, fb model.FallbackPatterns) (decimal.Decimal, bool) {
	return firstMatch(e, body, parseAmount, bankPatterns(bank, fieldAmount), fb.Amount)
}

// Merchant extracts and cleans the merchant name.
func (e *Extractor) Merchant(body string, bank *model.BankRule, fb model.FallbackPatterns) (string, bool) {
	return firstMatch(e, body, cleanMerchant, bankPatterns(bank, fieldMerchant), fb.Merchant)
}

// Reference extracts the transaction reference number.
func (e *Extractor) Reference(body string, bank *model.BankRule, fb model.FallbackPatterns) (string, bool) {
	return firstMatch(e, body, identity, bankPatterns(bank, fieldReference), fb.ReferenceNumber)
}

// Type resolves the transaction direction. Explicit type patterns are tried first,
// then the fallback keyword lists; with no signal at all the result is a debit
// and found is false.
func (e *Extractor) Type(body string, bank *model.BankRule, fb model.FallbackPatterns) (t model.TransactionType, found bool) {
	if t, ok := firstMatch(e, body, NormalizeType, bankPatterns(bank, fieldType), fb.TransactionType); ok {
		return t, true
	}

	lower := strings.ToLower(body)
	for _, kw := range fb.DebitKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return model.TypeDebit, true
		}
	}
	for _, kw := range fb.CreditKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return model.TypeCredit, true
		}
	}
	return model.TypeDebit, false
}

// CleanMerchant collapses whitespace, strips characters outside [A-Za-z0-9 &'-]
// and trims. An empty result means no merchant.
func CleanMerchant(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	s = merchantJunk.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeType maps a captured type token to a canonical direction.
func NormalizeType(token string) (model.TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "debited", "debit", "dr", "spent", "withdrawn", "paid", "sent", "purchase":
		return model.TypeDebit, true
	case "credited", "credit", "cr", "received", "deposited", "refund", "refunded":
		return model.TypeCredit, true
	}
	return "", false
}

type field int

const (
	fieldAmount field = iota
	fieldMerchant
	fieldDate
	fieldType
	fieldReference
)

func bankPatterns(bank *model.BankRule, f field) []string {
	if bank == nil {
		return nil
	}
	switch f {
	case fieldAmount:
		return bank.Patterns.Amount
	case fieldMerchant:
		return bank.Patterns.Merchant
	case fieldDate:
		return bank.Patterns.Date
	case fieldType:
		return bank.Patterns.TransactionType
	case fieldReference:
		return bank.Patterns.ReferenceNumber
	}
	return nil
}

// firstMatch walks each pattern list in order, fully exhausting one list before
// moving to the next. A match whose capture convert rejects counts as a miss.
func firstMatch[T any](e *Extractor, body string, convert func(string) (T, bool), lists ...[]string) (T, bool) {
	for _, patterns := range lists {
		for _, p := range patterns {
			raw, ok := capture(e.compiler.Pattern(p), body)
			if !ok {
				continue
			}
			if v, ok := convert(raw); ok {
				return v, true
			}
		}
	}
	var zero T
	return zero, false
}

// capture returns the first non-empty capture group, or the whole match for
// patterns without groups.
func capture(re *regexp.Regexp, body string) (string, bool) {
	if re == nil {
		return "", false
	}
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	if len(m) == 1 {
		v := strings.TrimSpace(m[0])
		return v, v != ""
	}
	for _, g := range m[1:] {
		if v := strings.TrimSpace(g); v != "" {
			return v, true
		}
	}
	return "", false
}

func identity(s string) (string, bool) {
	return s, s != ""
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || r == ' ' {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimSuffix(cleaned, ".")

	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

func cleanMerchant(raw string) (string, bool) {
	s := CleanMerchant(raw)
	return s, s != ""
}
