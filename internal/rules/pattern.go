package rules

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/Veraticus/spice-sms/internal/common"
)

// PatternError reports a pattern that failed to compile and was demoted to a literal match.
type PatternError struct {
	Err     error
	Pattern string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap exposes both the sentinel and the regexp error.
func (e *PatternError) Unwrap() []error {
	return []error{common.ErrPatternCompile, e.Err}
}

// CompilePattern compiles pattern. On malformed syntax it returns a regexp matching
// the pattern as an escaped literal together with a *PatternError; the returned
// regexp is always usable.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err == nil {
		return re, nil
	}
	return regexp.MustCompile(regexp.QuoteMeta(pattern)), &PatternError{Pattern: pattern, Err: err}
}

// patternCache memoizes compiled patterns by source string. One cache lives per
// loaded snapshot, so a reload starts from an empty memo.
type patternCache struct {
	compiled sync.Map // string -> *regexp.Regexp
	errMu    sync.Mutex
	errs     []error
}

func newPatternCache() *patternCache {
	return &patternCache{}
}

func (c *patternCache) get(pattern string) *regexp.Regexp {
	if re, ok := c.compiled.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}

	re, err := CompilePattern(pattern)
	if err != nil {
		common.LogWarn("Pattern demoted to literal match", common.Fields{
			"pattern": pattern,
			"error":   err.Error(),
		})
	}

	actual, loaded := c.compiled.LoadOrStore(pattern, re)
	if err != nil && !loaded {
		c.errMu.Lock()
		c.errs = append(c.errs, err)
		c.errMu.Unlock()
	}
	return actual.(*regexp.Regexp)
}

func (c *patternCache) errors() []error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}
