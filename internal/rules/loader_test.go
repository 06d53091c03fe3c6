package rules

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource serves swappable content and counts reads.
type countingSource struct {
	err   error
	name  string
	data  []byte
	mu    sync.Mutex
	reads atomic.Int32
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) Read(_ context.Context) ([]byte, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.data), nil
}

func (s *countingSource) set(data string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = []byte(data)
	s.err = err
}

const minimalBankDoc = `{
  "version": "1.0",
  "banks": [
    {
      "code": "TEST",
      "displayName": "Test Bank",
      "senderPatterns": ["(?i)TSTBNK"],
      "patterns": {"amount": ["Rs\\.?\\s*([\\d,]+)"], "merchant": ["at ([A-Z]+)"]}
    }
  ],
  "fallbackPatterns": {"amount": [], "merchant": [], "debitKeywords": ["debited"], "creditKeywords": ["credited"]}
}`

func TestLoader_LoadEmbeddedRules(t *testing.T) {
	ctx := context.Background()

	banks, err := NewBankLoader(EmbeddedBankRules()).Load(ctx)
	require.NoError(t, err)
	assert.True(t, model.IsSupportedRuleVersion(banks.Version))

	hdfc, ok := banks.Bank("HDFC")
	require.True(t, ok)
	assert.Equal(t, "HDFC Bank", hdfc.DisplayName)
	assert.NotEmpty(t, banks.FallbackPatterns.ReferenceNumber)
	assert.NotEmpty(t, banks.FallbackPatterns.DebitKeywords)

	merchants, err := NewMerchantLoader(EmbeddedMerchantRules()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Other", merchants.FallbackCategory)
	assert.NotEmpty(t, merchants.Categories)
}

func TestLoader_EmbeddedPatternsAllCompile(t *testing.T) {
	loader := NewBankLoader(EmbeddedBankRules())
	_, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loader.PatternErrors())

	mloader := NewMerchantLoader(EmbeddedMerchantRules())
	_, err = mloader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mloader.PatternErrors())
}

func TestLoader_CachesAfterFirstLoad(t *testing.T) {
	src := &countingSource{name: "rules.json", data: []byte(minimalBankDoc)}
	loader := NewBankLoader(src)
	ctx := context.Background()

	first, err := loader.Load(ctx)
	require.NoError(t, err)
	second, err := loader.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.reads.Load())
}

func TestLoader_ConcurrentFirstLoadReadsOnce(t *testing.T) {
	src := &countingSource{name: "rules.json", data: []byte(minimalBankDoc)}
	loader := NewBankLoader(src)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := loader.Load(context.Background())
			assert.NoError(t, err)
			assert.Len(t, doc.Banks, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.reads.Load())
}

func TestLoader_Failures(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		readErr error
		wantIs  error
	}{
		{name: "missing resource", readErr: errors.New("no such file"), wantIs: common.ErrRuleLoad},
		{name: "malformed JSON", data: `{"version": "1.0", "banks": [`, wantIs: common.ErrRuleLoad},
		{name: "empty document", data: "   ", wantIs: common.ErrRuleLoad},
		{name: "unsupported version", data: `{"version": "9.9", "banks": []}`, wantIs: common.ErrUnsupportedVersion},
		{
			name:   "duplicate bank codes",
			data:   `{"version": "1.0", "banks": [{"code": "A", "senderPatterns": ["A"]}, {"code": "A", "senderPatterns": ["B"]}]}`,
			wantIs: common.ErrInvalidRules,
		},
		{
			name:   "bank without sender patterns",
			data:   `{"version": "1.0", "banks": [{"code": "A"}]}`,
			wantIs: common.ErrInvalidRules,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &countingSource{name: "rules.json"}
			src.set(tt.data, tt.readErr)
			loader := NewBankLoader(src)

			_, err := loader.Load(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.ErrorIs(t, err, common.ErrRuleLoad)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, "rules.json", loadErr.Source)

			// The failure is cached until an explicit reload.
			_, err = loader.Load(context.Background())
			require.Error(t, err)
			assert.Equal(t, int32(1), src.reads.Load())
		})
	}
}

func TestLoader_InvalidPatternFallsBackToLiteral(t *testing.T) {
	doc := `{
	  "version": "1.0",
	  "banks": [{"code": "X", "senderPatterns": ["XBANK("], "patterns": {"amount": ["Rs ([0-9]+)"], "merchant": []}}],
	  "fallbackPatterns": {"amount": [], "merchant": []}
	}`
	loader := NewBankLoader(BytesSource{Label: "x.json", Data: []byte(doc)})

	_, err := loader.Load(context.Background())
	require.NoError(t, err, "a bad pattern must not fail the whole load")

	errs := loader.PatternErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], common.ErrPatternCompile)

	var patternErr *PatternError
	require.ErrorAs(t, errs[0], &patternErr)
	assert.Equal(t, "XBANK(", patternErr.Pattern)

	re := loader.Pattern("XBANK(")
	assert.True(t, re.MatchString("VM-XBANK(01"))
	assert.False(t, re.MatchString("XBANK"))
}

func TestLoader_PatternMemoized(t *testing.T) {
	loader := NewBankLoader(BytesSource{Label: "rules.json", Data: []byte(minimalBankDoc)})

	first := loader.Pattern(`Rs\.?\s*([\d,]+)`)
	second := loader.Pattern(`Rs\.?\s*([\d,]+)`)
	assert.Same(t, first, second)

	adHoc := loader.Pattern(`UTR\s*(\d+)`)
	assert.Same(t, adHoc, loader.Pattern(`UTR\s*(\d+)`))
}

func TestLoader_Reload(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{name: "rules.json", data: []byte(minimalBankDoc)}
	loader := NewBankLoader(src)

	doc, err := loader.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Banks, 1)
	before := loader.Pattern(`Rs\.?\s*([\d,]+)`)

	t.Run("picks up changed rules", func(t *testing.T) {
		src.set(`{"version": "1.1", "banks": [
		  {"code": "A", "senderPatterns": ["A"]},
		  {"code": "B", "senderPatterns": ["B"]}
		]}`, nil)

		doc, err := loader.Reload(ctx)
		require.NoError(t, err)
		assert.Len(t, doc.Banks, 2)

		cached, err := loader.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, cached.Banks, 2)
	})

	t.Run("compiled pattern memo is invalidated", func(t *testing.T) {
		after := loader.Pattern(`Rs\.?\s*([\d,]+)`)
		assert.NotSame(t, before, after)
	})

	t.Run("failed reload keeps previous rules", func(t *testing.T) {
		src.set(`not json`, nil)

		_, err := loader.Reload(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrRuleLoad)

		cached, err := loader.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, cached.Banks, 2)
	})

	t.Run("reload recovers a failed first load", func(t *testing.T) {
		broken := &countingSource{name: "rules.json"}
		broken.set("", errors.New("missing"))
		l := NewBankLoader(broken)

		_, err := l.Load(ctx)
		require.Error(t, err)

		broken.set(minimalBankDoc, nil)
		doc, err := l.Reload(ctx)
		require.NoError(t, err)
		assert.Len(t, doc.Banks, 1)
	})
}

func TestLoader_ReloadOnUnchangedInputIsIdempotent(t *testing.T) {
	ctx := context.Background()
	loader := NewBankLoader(EmbeddedBankRules())

	before, err := loader.Load(ctx)
	require.NoError(t, err)
	after, err := loader.Reload(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestLoader_YAMLDocument(t *testing.T) {
	doc := `
version: "1.0"
fallbackCategory: Misc
categories:
  - name: Coffee
    emoji: "☕"
    color: "#795548"
    priority: 1
    patterns: ["STARBUCKS", "BLUE TOKAI"]
  - name: Misc
    priority: 50
`
	loader := NewMerchantLoader(BytesSource{Label: "merchants.yaml", Data: []byte(doc)})

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Misc", cfg.FallbackCategory)
	require.Len(t, cfg.Categories, 2)
	assert.Equal(t, []string{"STARBUCKS", "BLUE TOKAI"}, cfg.Categories[0].Patterns)
	assert.Same(t, loader.Pattern("(?i)STARBUCKS"), loader.Pattern(model.CaseInsensitive("STARBUCKS")))
}

func TestLoader_YAMLFallbackPatternsInline(t *testing.T) {
	doc := `
version: "1.0"
banks: []
fallbackPatterns:
  amount: ['Rs\.?\s*([\d,]+)']
  referenceNumber: ['Ref\s*(\d+)']
  debitKeywords: [debited]
  creditKeywords: [credited]
`
	loader := NewBankLoader(BytesSource{Label: "banks.yml", Data: []byte(doc)})

	rules, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`Rs\.?\s*([\d,]+)`}, rules.FallbackPatterns.Amount)
	assert.Equal(t, []string{`Ref\s*(\d+)`}, rules.FallbackPatterns.ReferenceNumber)
	assert.Equal(t, []string{"debited"}, rules.FallbackPatterns.DebitKeywords)
}

func TestCompilePattern(t *testing.T) {
	re, err := CompilePattern(`Ref\s*(\d+)`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ref 42", "42"}, re.FindStringSubmatch("Ref 42"))

	re, err = CompilePattern(`[unclosed`)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPatternCompile)
	require.NotNil(t, re)
	assert.True(t, re.MatchString("has [unclosed bracket"))
}

func TestSourceFor(t *testing.T) {
	fallback := EmbeddedBankRules()
	assert.Equal(t, fallback, SourceFor("", fallback))
	assert.Equal(t, FileSource{Path: "/etc/rules.json"}, SourceFor("/etc/rules.json", fallback))
}

func TestFileSource_Missing(t *testing.T) {
	loader := NewBankLoader(FileSource{Path: t.TempDir() + "/missing.json"})
	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, common.ErrRuleLoad)
}

func TestLoader_CancelledLoadIsNotCached(t *testing.T) {
	loader := NewBankLoader(BytesSource{Label: "rules.json", Data: []byte(minimalBankDoc)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	doc, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Banks, 1)
}
