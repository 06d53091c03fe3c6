// Package categorize maps normalized merchant names to spending categories
// using priority-ordered rules.
package categorize

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
)

// RuleSource supplies merchant category rules and compiled patterns.
// *rules.Loader[model.MerchantRulesConfig] implements it.
type RuleSource interface {
	Load(ctx context.Context) (model.MerchantRulesConfig, error)
	Reload(ctx context.Context) (model.MerchantRulesConfig, error)
	Pattern(pattern string) *regexp.Regexp
}

// MappingStore returns a category the user previously chose for a merchant.
type MappingStore interface {
	LookupCategory(ctx context.Context, normalized string) (string, bool, error)
}

// MappingPrefix marks results that came from a stored mapping rather than a rule.
const MappingPrefix = "mapping:"

// Option configures an Engine.
type Option func(*Engine)

// WithMappingStore consults store before any rule.
func WithMappingStore(store MappingStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// Engine categorizes merchants. It is safe for concurrent use.
type Engine struct {
	rules    RuleSource
	store    MappingStore
	degraded atomic.Bool
}

// New creates an engine over source.
func New(source RuleSource, opts ...Option) *Engine {
	e := &Engine{rules: source}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Categorize returns the category for merchant. It never fails: without rules
// it uses a built-in keyword table, and without any match the fallback category.
func (e *Engine) Categorize(ctx context.Context, merchant string) model.CategorizationResult {
	normalized := common.NormalizeMerchant(merchant)

	doc, err := e.rules.Load(ctx)
	if err != nil {
		if e.degraded.CompareAndSwap(false, true) {
			common.LogWarn("Merchant rules unavailable, using built-in keywords", common.Fields{
				"error": err.Error(),
			})
		}
		if res, ok := e.fromMapping(ctx, normalized, model.MerchantRulesConfig{}); ok {
			return res
		}
		return categorizeBuiltin(normalized)
	}
	if e.degraded.Load() {
		e.degraded.Store(false)
	}

	if res, ok := e.fromMapping(ctx, normalized, doc); ok {
		return res
	}

	for _, rule := range byPriority(doc.Categories) {
		for _, pattern := range rule.Patterns {
			if e.rules.Pattern(model.CaseInsensitive(pattern)).MatchString(normalized) {
				matched := pattern
				return model.CategorizationResult{
					CategoryName:   rule.Name,
					Emoji:          rule.Emoji,
					Color:          rule.Color,
					MatchedPattern: &matched,
					Confidence:     model.ConfidenceRuleMatch,
				}
			}
		}
	}

	fallback, ok := doc.Category(doc.FallbackCategory)
	if !ok {
		fallback = model.MerchantCategoryRule{Name: doc.FallbackCategory}
	}
	return fallbackResult(fallback)
}

// Reload re-reads the merchant rules. On failure the previous rules stay active.
func (e *Engine) Reload(ctx context.Context) error {
	if _, err := e.rules.Reload(ctx); err != nil {
		return err
	}
	e.degraded.Store(false)
	return nil
}

// Degraded reports whether the engine is running on the built-in keyword table.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

func (e *Engine) fromMapping(ctx context.Context, normalized string, doc model.MerchantRulesConfig) (model.CategorizationResult, bool) {
	if e.store == nil || normalized == "" {
		return model.CategorizationResult{}, false
	}

	category, ok, err := e.store.LookupCategory(ctx, normalized)
	if err != nil {
		common.LogWarn("Category mapping lookup failed", common.Fields{
			"merchant": normalized,
			"error":    err.Error(),
		})
		return model.CategorizationResult{}, false
	}
	if !ok || category == "" {
		return model.CategorizationResult{}, false
	}

	res := model.CategorizationResult{
		CategoryName: category,
		Confidence:   model.ConfidenceRuleMatch,
	}
	if rule, found := doc.Category(category); found {
		res.Emoji, res.Color = rule.Emoji, rule.Color
	} else if b, found := builtinByName(category); found {
		res.Emoji, res.Color = b.emoji, b.color
	}
	matched := MappingPrefix + normalized
	res.MatchedPattern = &matched
	return res, true
}

// byPriority returns the rules in ascending priority. Equal priorities keep
// their document order.
func byPriority(rules []model.MerchantCategoryRule) []model.MerchantCategoryRule {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b model.MerchantCategoryRule) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return sorted
}

func categorizeBuiltin(normalized string) model.CategorizationResult {
	for _, b := range builtinCategories {
		for _, kw := range b.keywords {
			if normalized != "" && strings.Contains(normalized, kw) {
				matched := kw
				return model.CategorizationResult{
					CategoryName:   b.name,
					Emoji:          b.emoji,
					Color:          b.color,
					MatchedPattern: &matched,
					Confidence:     model.ConfidenceBuiltinMatch,
				}
			}
		}
	}
	return fallbackResult(builtinFallback)
}

func builtinByName(name string) (builtinCategory, bool) {
	for _, b := range builtinCategories {
		if b.name == name {
			return b, true
		}
	}
	return builtinCategory{}, false
}

func fallbackResult(rule model.MerchantCategoryRule) model.CategorizationResult {
	return model.CategorizationResult{
		CategoryName: rule.Name,
		Emoji:        rule.Emoji,
		Color:        rule.Color,
		Confidence:   model.ConfidenceFallback,
		IsFallback:   true,
	}
}
