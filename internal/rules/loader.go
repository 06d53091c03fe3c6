// Package rules loads, validates and caches the externally editable rule documents
// that drive SMS parsing and merchant categorization.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"gopkg.in/yaml.v3"
)

// Document is a rule document the Loader can validate and precompile.
type Document interface {
	Validate() error
	PatternStrings() []string
}

// LoadError reports a rule resource that could not be read, decoded or validated.
type LoadError struct {
	Err    error
	Source string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load rules from %s: %v", e.Source, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{common.ErrRuleLoad, e.Err}
}

// snapshot is an immutable loaded state. Failed loads are snapshots too, so a
// broken resource is read once rather than on every parse.
type snapshot[T Document] struct {
	err      error
	patterns *patternCache
	doc      T
}

// Loader lazily loads a rule document exactly once and serves it lock-free
// afterwards. Reload swaps in a freshly built snapshot atomically.
type Loader[T Document] struct {
	source  Source
	current atomic.Pointer[snapshot[T]]
	mu      sync.Mutex
}

// NewLoader creates a loader for the given source.
func NewLoader[T Document](source Source) *Loader[T] {
	return &Loader[T]{source: source}
}

// NewBankLoader creates a loader for bank rule documents.
func NewBankLoader(source Source) *Loader[model.RuleDocument] {
	return NewLoader[model.RuleDocument](source)
}

// NewMerchantLoader creates a loader for merchant category rule documents.
func NewMerchantLoader(source Source) *Loader[model.MerchantRulesConfig] {
	return NewLoader[model.MerchantRulesConfig](source)
}

// SourceName returns the name of the underlying source.
func (l *Loader[T]) SourceName() string {
	return l.source.Name()
}

// Load returns the cached document, reading and compiling it on first use.
// Concurrent first callers block on a single load.
func (l *Loader[T]) Load(ctx context.Context) (T, error) {
	s := l.snapshot(ctx)
	return s.doc, s.err
}

// Reload discards the cached document and compiled patterns and loads afresh.
// If the new load fails while a good document is cached, the good document stays
// in place and the error is returned.
func (l *Loader[T]) Reload(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.build(ctx)
	if next.err != nil {
		if ctx.Err() != nil {
			var zero T
			return zero, next.err
		}
		if prev := l.current.Load(); prev != nil && prev.err == nil {
			common.LogWarn("Rule reload failed, keeping previous rules", common.Fields{
				"source": l.source.Name(),
				"error":  next.err.Error(),
			})
			var zero T
			return zero, next.err
		}
	}

	l.current.Store(next)
	return next.doc, next.err
}

// Pattern returns the memoized compiled form of pattern. Malformed patterns match
// as escaped literals.
func (l *Loader[T]) Pattern(pattern string) *regexp.Regexp {
	return l.snapshot(context.Background()).patterns.get(pattern)
}

// PatternErrors lists the patterns of the current snapshot that fell back to literals.
func (l *Loader[T]) PatternErrors() []error {
	s := l.current.Load()
	if s == nil {
		return nil
	}
	return s.patterns.errors()
}

func (l *Loader[T]) snapshot(ctx context.Context) *snapshot[T] {
	if s := l.current.Load(); s != nil {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.current.Load(); s != nil {
		return s
	}

	s := l.build(ctx)
	if s.err != nil && ctx.Err() != nil {
		// A cancelled caller must not poison the cache for everyone else.
		return s
	}
	l.current.Store(s)
	return s
}

func (l *Loader[T]) build(ctx context.Context) *snapshot[T] {
	s := &snapshot[T]{patterns: newPatternCache()}
	name := l.source.Name()

	data, err := l.source.Read(ctx)
	if err != nil {
		s.err = &LoadError{Source: name, Err: err}
		common.LogError(s.err, "Failed to read rules", common.Fields{"source": name})
		return s
	}

	doc, err := decode[T](name, data)
	if err != nil {
		s.err = &LoadError{Source: name, Err: err}
		common.LogError(s.err, "Failed to decode rules", common.Fields{"source": name})
		return s
	}

	if err := doc.Validate(); err != nil {
		s.err = &LoadError{Source: name, Err: fmt.Errorf("%w: %w", common.ErrInvalidRules, err)}
		common.LogError(s.err, "Rule document failed validation", common.Fields{"source": name})
		return s
	}

	patterns := doc.PatternStrings()
	for _, p := range patterns {
		s.patterns.get(p)
	}
	s.doc = doc

	common.LogInfo("Loaded rules", common.Fields{
		"source":            name,
		"patterns":          len(patterns),
		"literal_fallbacks": len(s.patterns.errors()),
	})

	return s
}

func decode[T Document](name string, data []byte) (T, error) {
	var doc T

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return doc, fmt.Errorf("empty rule document")
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}

	return doc, nil
}
