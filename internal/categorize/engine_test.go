package categorize

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddedEngine(opts ...Option) *Engine {
	return New(rules.NewMerchantLoader(rules.EmbeddedMerchantRules()), opts...)
}

type fakeMappings struct {
	err        error
	categories map[string]string
}

func (f fakeMappings) LookupCategory(_ context.Context, normalized string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	c, ok := f.categories[normalized]
	return c, ok, nil
}

func TestCategorize_EmbeddedRules(t *testing.T) {
	e := newEmbeddedEngine()

	tests := []struct {
		merchant string
		want     string
		pattern  string
	}{
		{merchant: "SWIGGY BANGALORE", want: "Food & Dining", pattern: "SWIGGY"},
		{merchant: "swiggy*order#1234", want: "Food & Dining", pattern: "SWIGGY"},
		{merchant: "Amazon Prime Video", want: "Entertainment", pattern: `AMAZON\s*PRIME`},
		{merchant: "AMAZON PAY INDIA", want: "Shopping", pattern: "AMAZON"},
		{merchant: "UBER INDIA", want: "Transportation", pattern: `\bUBER\b`},
		{merchant: "Tata 1mg", want: "Healthcare", pattern: `\b1MG\b`},
	}

	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			got := e.Categorize(context.Background(), tt.merchant)
			assert.Equal(t, tt.want, got.CategoryName)
			assert.Equal(t, model.ConfidenceRuleMatch, got.Confidence)
			assert.False(t, got.IsFallback)
			require.NotNil(t, got.MatchedPattern)
			assert.Equal(t, tt.pattern, *got.MatchedPattern)
			assert.NotEmpty(t, got.Emoji)
			assert.NotEmpty(t, got.Color)
		})
	}
}

func TestCategorize_Fallback(t *testing.T) {
	e := newEmbeddedEngine()

	for _, merchant := range []string{"RAMESH KIRANA", "", "Unknown Merchant"} {
		got := e.Categorize(context.Background(), merchant)
		assert.Equal(t, "Other", got.CategoryName, merchant)
		assert.Equal(t, model.ConfidenceFallback, got.Confidence)
		assert.True(t, got.IsFallback)
		assert.Nil(t, got.MatchedPattern)
		assert.Equal(t, "📦", got.Emoji)
	}
}

func TestCategorize_PriorityBeatsListOrder(t *testing.T) {
	doc := `{
	  "version": "1.0",
	  "fallbackCategory": "Misc",
	  "categories": [
	    {"name": "Broad", "priority": 10, "patterns": ["COFFEE"]},
	    {"name": "Narrow", "priority": 2, "patterns": ["BLUE TOKAI COFFEE"]},
	    {"name": "Tie", "priority": 2, "patterns": ["TOKAI"]}
	  ]
	}`
	e := New(rules.NewMerchantLoader(rules.BytesSource{Label: "m.json", Data: []byte(doc)}))

	got := e.Categorize(context.Background(), "Blue Tokai Coffee Roasters")
	assert.Equal(t, "Narrow", got.CategoryName, "lowest priority wins, ties keep document order")

	got = e.Categorize(context.Background(), "ANY COFFEE")
	assert.Equal(t, "Broad", got.CategoryName)

	got = e.Categorize(context.Background(), "tea stall")
	assert.Equal(t, "Misc", got.CategoryName)
	assert.True(t, got.IsFallback)
	assert.Empty(t, got.Emoji, "fallback category without a rule entry has no styling")
}

func TestCategorize_NormalizesInput(t *testing.T) {
	doc := `{
	  "version": "1.0",
	  "fallbackCategory": "Misc",
	  "categories": [{"name": "Exact", "priority": 1, "patterns": ["^PAYTM MALL$"]}]
	}`
	e := New(rules.NewMerchantLoader(rules.BytesSource{Label: "m.json", Data: []byte(doc)}))

	got := e.Categorize(context.Background(), "  paytm   mall*TXN-99812 ")
	assert.Equal(t, "Exact", got.CategoryName)
}

func TestCategorize_DegradedBuiltinTable(t *testing.T) {
	e := New(rules.NewMerchantLoader(rules.BytesSource{Label: "m.json", Data: []byte(`{"version": "7.0"}`)}))

	got := e.Categorize(context.Background(), "Zomato Ltd")
	assert.True(t, e.Degraded())
	assert.Equal(t, "Food & Dining", got.CategoryName)
	assert.Equal(t, model.ConfidenceBuiltinMatch, got.Confidence)
	assert.False(t, got.IsFallback)

	got = e.Categorize(context.Background(), "RAMESH KIRANA")
	assert.Equal(t, "Other", got.CategoryName)
	assert.Equal(t, model.ConfidenceFallback, got.Confidence)
	assert.True(t, got.IsFallback)
}

func TestCategorize_CancelledFirstLoadDoesNotStickDegraded(t *testing.T) {
	e := newEmbeddedEngine()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_ = e.Categorize(cancelled, "SWIGGY")
	assert.True(t, e.Degraded())

	got := e.Categorize(context.Background(), "SWIGGY")
	assert.False(t, e.Degraded())
	assert.Equal(t, model.ConfidenceRuleMatch, got.Confidence)
}

func TestCategorize_MappingStore(t *testing.T) {
	store := fakeMappings{categories: map[string]string{
		"SWIGGY BANGALORE": "Groceries",
		"RAMESH KIRANA":    "Groceries",
		"MY LANDLORD":      "Rent",
	}}
	e := newEmbeddedEngine(WithMappingStore(store))

	tests := []struct {
		merchant string
		want     string
		emoji    string
	}{
		{merchant: "swiggy bangalore", want: "Groceries", emoji: "🛒"},
		{merchant: "Ramesh Kirana", want: "Groceries", emoji: "🛒"},
		{merchant: "My Landlord", want: "Rent", emoji: ""},
	}

	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			got := e.Categorize(context.Background(), tt.merchant)
			assert.Equal(t, tt.want, got.CategoryName)
			assert.Equal(t, tt.emoji, got.Emoji)
			assert.Equal(t, model.ConfidenceRuleMatch, got.Confidence)
			require.NotNil(t, got.MatchedPattern)
			assert.Contains(t, *got.MatchedPattern, MappingPrefix)
		})
	}

	t.Run("store errors fall through to rules", func(t *testing.T) {
		e := newEmbeddedEngine(WithMappingStore(fakeMappings{err: errors.New("locked")}))
		got := e.Categorize(context.Background(), "SWIGGY BANGALORE")
		assert.Equal(t, "Food & Dining", got.CategoryName)
	})
}

func TestCategorize_ReloadIsIdempotent(t *testing.T) {
	e := newEmbeddedEngine()
	ctx := context.Background()

	merchants := []string{"NETFLIX.COM", "BIGBASKET", "Shell Petrol", "unknown shop"}
	before := make([]model.CategorizationResult, len(merchants))
	for i, m := range merchants {
		before[i] = e.Categorize(ctx, m)
	}

	require.NoError(t, e.Reload(ctx))

	for i, m := range merchants {
		assert.Equal(t, before[i], e.Categorize(ctx, m), m)
	}
}

func TestCategorize_ReloadRecoversFromDegraded(t *testing.T) {
	src := &swappableSource{}
	e := New(rules.NewMerchantLoader(src))

	_ = e.Categorize(context.Background(), "NETFLIX")
	require.True(t, e.Degraded())

	src.set([]byte(`{"version": "1.0", "fallbackCategory": "Misc", "categories": [{"name": "Fun", "priority": 1, "patterns": ["NETFLIX"]}]}`))
	require.NoError(t, e.Reload(context.Background()))
	assert.False(t, e.Degraded())

	got := e.Categorize(context.Background(), "NETFLIX")
	assert.Equal(t, "Fun", got.CategoryName)
	assert.Equal(t, model.ConfidenceRuleMatch, got.Confidence)
}

func TestCategorize_Concurrent(t *testing.T) {
	e := newEmbeddedEngine()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := e.Categorize(context.Background(), "ZOMATO")
			assert.Equal(t, "Food & Dining", got.CategoryName)
		}()
	}
	wg.Wait()
}

type swappableSource struct {
	data []byte
	mu   sync.Mutex
}

func (s *swappableSource) Name() string { return "merchants.json" }

func (s *swappableSource) Read(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, errors.New("not yet available")
	}
	return s.data, nil
}

func (s *swappableSource) set(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}
