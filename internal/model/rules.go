// Package model defines the core data structures for the spice-sms application.
package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Veraticus/spice-sms/internal/common"
)

// SupportedRuleVersions lists the rule document schema versions this build understands.
var SupportedRuleVersions = []string{"1.0", "1.1"}

// IsSupportedRuleVersion reports whether version is a known schema version.
func IsSupportedRuleVersion(version string) bool {
	return slices.Contains(SupportedRuleVersions, strings.TrimSpace(version))
}

// RuleDocument is the versioned container of bank rules and fallback patterns.
type RuleDocument struct {
	Version          string           `json:"version" yaml:"version"`
	Banks            []BankRule       `json:"banks" yaml:"banks"`
	FallbackPatterns FallbackPatterns `json:"fallbackPatterns" yaml:"fallbackPatterns"`
	// DefaultWeights overrides the process-wide confidence weights when set.
	DefaultWeights *ConfidenceWeights `json:"defaultConfidenceWeights,omitempty" yaml:"defaultConfidenceWeights,omitempty"`
}

// BankRule is a named set of sender-matching and field-extraction patterns for one bank.
type BankRule struct {
	Code              string              `json:"code" yaml:"code"`
	DisplayName       string              `json:"displayName" yaml:"displayName"`
	SenderPatterns    []string            `json:"senderPatterns" yaml:"senderPatterns"`
	Patterns          TransactionPatterns `json:"patterns" yaml:"patterns"`
	ConfidenceWeights *ConfidenceWeights  `json:"confidenceWeights,omitempty" yaml:"confidenceWeights,omitempty"`
}

// TransactionPatterns holds ordered regex lists per field. First match wins.
type TransactionPatterns struct {
	Amount          []string `json:"amount" yaml:"amount"`
	Merchant        []string `json:"merchant" yaml:"merchant"`
	Date            []string `json:"date,omitempty" yaml:"date,omitempty"`
	TransactionType []string `json:"transactionType,omitempty" yaml:"transactionType,omitempty"`
	ReferenceNumber []string `json:"referenceNumber,omitempty" yaml:"referenceNumber,omitempty"`
}

// All returns every pattern across all fields.
func (p TransactionPatterns) All() []string {
	all := make([]string, 0, len(p.Amount)+len(p.Merchant)+len(p.Date)+len(p.TransactionType)+len(p.ReferenceNumber))
	all = append(all, p.Amount...)
	all = append(all, p.Merchant...)
	all = append(all, p.Date...)
	all = append(all, p.TransactionType...)
	all = append(all, p.ReferenceNumber...)
	return all
}

// FallbackPatterns are the generic patterns used when no bank rule applies.
type FallbackPatterns struct {
	TransactionPatterns `yaml:",inline"`
	// Keyword lists are lowercase substrings matched against the lowercased body.
	DebitKeywords  []string `json:"debitKeywords" yaml:"debitKeywords"`
	CreditKeywords []string `json:"creditKeywords" yaml:"creditKeywords"`
}

// ConfidenceWeights weights each scored field. They sum to 1.0 by convention only.
type ConfidenceWeights struct {
	Sender    float64 `json:"sender" yaml:"sender"`
	Amount    float64 `json:"amount" yaml:"amount"`
	Merchant  float64 `json:"merchant" yaml:"merchant"`
	Date      float64 `json:"date" yaml:"date"`
	Reference float64 `json:"reference" yaml:"reference"`
}

// Sum returns the total of all weights.
func (w ConfidenceWeights) Sum() float64 {
	return w.Sender + w.Amount + w.Merchant + w.Date + w.Reference
}

// Validate checks structural invariants of the document.
func (d RuleDocument) Validate() error {
	if !IsSupportedRuleVersion(d.Version) {
		return fmt.Errorf("%w: rule document version %q (supported: %s)",
			common.ErrUnsupportedVersion, d.Version, strings.Join(SupportedRuleVersions, ", "))
	}

	seen := make(map[string]bool, len(d.Banks))
	for i, bank := range d.Banks {
		code := strings.TrimSpace(bank.Code)
		if code == "" {
			return fmt.Errorf("bank at index %d: missing code", i)
		}
		if seen[code] {
			return fmt.Errorf("bank %q: duplicate code", code)
		}
		seen[code] = true

		if len(bank.SenderPatterns) == 0 {
			return fmt.Errorf("bank %q: no sender patterns", code)
		}
		if bank.ConfidenceWeights != nil {
			if err := bank.ConfidenceWeights.validate(); err != nil {
				return fmt.Errorf("bank %q: %w", code, err)
			}
		}
	}

	if d.DefaultWeights != nil {
		if err := d.DefaultWeights.validate(); err != nil {
			return fmt.Errorf("default weights: %w", err)
		}
	}

	return nil
}

// PatternStrings returns every regex the document references, for precompilation.
func (d RuleDocument) PatternStrings() []string {
	var patterns []string
	for _, bank := range d.Banks {
		patterns = append(patterns, bank.SenderPatterns...)
		patterns = append(patterns, bank.Patterns.All()...)
	}
	patterns = append(patterns, d.FallbackPatterns.All()...)
	return patterns
}

// Bank returns the bank rule with the given code.
func (d RuleDocument) Bank(code string) (BankRule, bool) {
	for _, bank := range d.Banks {
		if bank.Code == code {
			return bank, true
		}
	}
	return BankRule{}, false
}

func (w ConfidenceWeights) validate() error {
	for name, v := range map[string]float64{
		"sender":    w.Sender,
		"amount":    w.Amount,
		"merchant":  w.Merchant,
		"date":      w.Date,
		"reference": w.Reference,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative, got %.2f", name, v)
		}
	}
	return nil
}

// MerchantCategoryRule maps merchant patterns to a category. Lower priority wins.
type MerchantCategoryRule struct {
	Name     string   `json:"name" yaml:"name"`
	Emoji    string   `json:"emoji" yaml:"emoji"`
	Color    string   `json:"color" yaml:"color"`
	Priority int      `json:"priority" yaml:"priority"`
	Patterns []string `json:"patterns" yaml:"patterns"`
}

// MerchantRulesConfig is the merchant-category rule document.
type MerchantRulesConfig struct {
	Version          string                 `json:"version" yaml:"version"`
	Categories       []MerchantCategoryRule `json:"categories" yaml:"categories"`
	FallbackCategory string                 `json:"fallbackCategory" yaml:"fallbackCategory"`
}

// Validate checks structural invariants of the merchant rules.
func (c MerchantRulesConfig) Validate() error {
	if !IsSupportedRuleVersion(c.Version) {
		return fmt.Errorf("%w: merchant rules version %q (supported: %s)",
			common.ErrUnsupportedVersion, c.Version, strings.Join(SupportedRuleVersions, ", "))
	}
	if strings.TrimSpace(c.FallbackCategory) == "" {
		return fmt.Errorf("missing fallback category")
	}

	seen := make(map[string]bool, len(c.Categories))
	for i, rule := range c.Categories {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("category at index %d: missing name", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("category %q: duplicate name", rule.Name)
		}
		seen[rule.Name] = true
	}
	return nil
}

// PatternStrings returns the case-insensitive form of every category pattern.
func (c MerchantRulesConfig) PatternStrings() []string {
	var patterns []string
	for _, rule := range c.Categories {
		for _, p := range rule.Patterns {
			patterns = append(patterns, CaseInsensitive(p))
		}
	}
	return patterns
}

// Category returns the category rule with the given name.
func (c MerchantRulesConfig) Category(name string) (MerchantCategoryRule, bool) {
	for _, rule := range c.Categories {
		if rule.Name == name {
			return rule, true
		}
	}
	return MerchantCategoryRule{}, false
}

// CaseInsensitive prefixes a pattern with (?i) unless it already carries it.
func CaseInsensitive(pattern string) string {
	if strings.HasPrefix(pattern, "(?i)") {
		return pattern
	}
	return "(?i)" + pattern
}
