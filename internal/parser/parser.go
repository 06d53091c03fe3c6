// Package parser turns raw bank SMS into structured transactions.
package parser

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/confidence"
	"github.com/Veraticus/spice-sms/internal/extract"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/rules"
)

// UnknownMerchant stands in for messages whose merchant could not be extracted.
const UnknownMerchant = "Unknown Merchant"

// RuleSource supplies bank rules and compiled patterns.
// *rules.Loader[model.RuleDocument] implements it.
type RuleSource interface {
	Load(ctx context.Context) (model.RuleDocument, error)
	Reload(ctx context.Context) (model.RuleDocument, error)
	Pattern(pattern string) *regexp.Regexp
}

// NormalizationStore resolves previously seen merchant aliases to a canonical
// normalized name.
type NormalizationStore interface {
	LookupNormalized(ctx context.Context, alias string) (string, bool, error)
}

// Option configures a Parser.
type Option func(*Parser)

// WithStrictRules makes rule-load failures fatal for every message instead of
// falling back to the built-in patterns.
func WithStrictRules(strict bool) Option {
	return func(p *Parser) {
		p.strict = strict
	}
}

// WithNormalizationStore consults store for canonical merchant names.
func WithNormalizationStore(store NormalizationStore) Option {
	return func(p *Parser) {
		p.store = store
	}
}

// Parser extracts transactions from SMS. It is safe for concurrent use.
type Parser struct {
	rules       RuleSource
	store       NormalizationStore
	extractor   *extract.Extractor
	calculators sync.Map // model.ConfidenceWeights -> *confidence.Calculator
	degraded    atomic.Bool
	strict      bool
}

// New creates a parser over the given rule source.
func New(source RuleSource, opts ...Option) *Parser {
	p := &Parser{
		rules:     source,
		extractor: extract.New(source),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts a transaction from msg. Every failure is a *ParseError.
func (p *Parser) Parse(ctx context.Context, msg model.SMS) (*model.ParsedTransaction, error) {
	doc, err := p.document(ctx)
	if err != nil {
		return nil, newParseError(ReasonRuleLoad, err)
	}

	bank := p.matchBank(doc, msg.Sender)
	fb := doc.FallbackPatterns
	body := msg.Body

	amount, amountOK := p.extractor.Amount(body, bank, fb)
	merchant, merchantOK := p.extractor.Merchant(body, bank, fb)
	date, dateOK := p.extractor.Date(body, bank, fb, msg.ReceivedAt())
	txnType, typeOK := p.extractor.Type(body, bank, fb)
	ref, refOK := p.extractor.Reference(body, bank, fb)

	// Reference first: it is what separates transactions from promotions, and
	// promotions often quote prices.
	if !refOK {
		return nil, p.fail(msg, ReasonReferenceNotFound, ErrReferenceNotFound)
	}
	if !amountOK {
		return nil, p.fail(msg, ReasonAmountNotFound, ErrAmountNotFound)
	}

	score := p.calculator(doc).Calculate(confidence.Input{
		Bank:      bank,
		Body:      body,
		Sender:    confidence.Observed(msg.Sender, bank != nil),
		Amount:    confidence.Observed(amount.String(), amountOK),
		Merchant:  confidence.Observed(merchant, merchantOK),
		Date:      confidence.Observed(date.Format("2006-01-02"), dateOK),
		Type:      confidence.Observed(string(txnType), typeOK),
		Reference: confidence.Observed(ref, refOK),
	})

	if !merchantOK {
		merchant = UnknownMerchant
	}

	txn := &model.ParsedTransaction{
		Date:               date,
		Amount:             amount,
		Sender:             msg.Sender,
		RawMerchant:        merchant,
		NormalizedMerchant: p.normalize(ctx, merchant),
		BankName:           bankName(bank, msg.Sender),
		RawBody:            body,
		ReferenceNumber:    ref,
		Type:               txnType,
		Confidence:         score,
		IsDebit:            txnType == model.TypeDebit,
	}
	if bank != nil {
		txn.BankCode = bank.Code
	}
	txn.Fingerprint = txn.GenerateFingerprint()

	return txn, nil
}

// MatchBank returns the first bank whose sender patterns match sender.
func (p *Parser) MatchBank(ctx context.Context, sender string) (*model.BankRule, bool) {
	doc, err := p.document(ctx)
	if err != nil {
		return nil, false
	}
	bank := p.matchBank(doc, sender)
	return bank, bank != nil
}

// Reload re-reads the bank rules. On failure the previous rules stay active.
func (p *Parser) Reload(ctx context.Context) error {
	if _, err := p.rules.Reload(ctx); err != nil {
		return err
	}
	p.degraded.Store(false)
	return nil
}

// Degraded reports whether the parser is running on built-in fallback patterns.
func (p *Parser) Degraded() bool {
	return p.degraded.Load()
}

// document returns the active rules, substituting the built-in fallback
// document when loading failed and the parser is not strict.
func (p *Parser) document(ctx context.Context) (model.RuleDocument, error) {
	doc, err := p.rules.Load(ctx)
	if err == nil {
		// A failed load that was not cached (cancelled ctx) must not stick.
		if p.degraded.Load() {
			p.degraded.Store(false)
		}
		return doc, nil
	}
	if p.strict {
		return model.RuleDocument{}, err
	}
	if p.degraded.CompareAndSwap(false, true) {
		common.LogWarn("Bank rules unavailable, parsing with built-in fallback patterns", common.Fields{
			"error": err.Error(),
		})
	}
	return rules.FallbackDocument(), nil
}

func (p *Parser) matchBank(doc model.RuleDocument, sender string) *model.BankRule {
	for i := range doc.Banks {
		for _, pattern := range doc.Banks[i].SenderPatterns {
			if p.rules.Pattern(pattern).MatchString(sender) {
				return &doc.Banks[i]
			}
		}
	}
	return nil
}

func (p *Parser) calculator(doc model.RuleDocument) *confidence.Calculator {
	weights := confidence.DefaultWeights()
	if doc.DefaultWeights != nil {
		weights = *doc.DefaultWeights
	}
	if c, ok := p.calculators.Load(weights); ok {
		return c.(*confidence.Calculator)
	}
	c, _ := p.calculators.LoadOrStore(weights, confidence.New(&weights))
	return c.(*confidence.Calculator)
}

func (p *Parser) normalize(ctx context.Context, merchant string) string {
	normalized := common.NormalizeMerchant(merchant)
	if p.store == nil || normalized == "" {
		return normalized
	}

	canonical, ok, err := p.store.LookupNormalized(ctx, normalized)
	if err != nil {
		common.LogWarn("Merchant normalization lookup failed", common.Fields{
			"merchant": normalized,
			"error":    err.Error(),
		})
		return normalized
	}
	if ok && canonical != "" {
		return canonical
	}
	return normalized
}

func (p *Parser) fail(msg model.SMS, reason string, err error) *ParseError {
	common.LogDebug("SMS skipped", common.Fields{
		"sender": msg.Sender,
		"reason": reason,
	})
	return newParseError(reason, err)
}

func bankName(bank *model.BankRule, sender string) string {
	if bank == nil {
		return strings.ToUpper(strings.TrimSpace(sender))
	}
	if bank.DisplayName != "" {
		return bank.DisplayName
	}
	return bank.Code
}
