package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/logger"
)

// MatchTimeout bounds a single pattern evaluation. Patterns are operator
// supplied and run against user-controlled content, so a backtracking blowup
// must fail the one pattern rather than stall the scan.
const MatchTimeout = 2 * time.Second

// PatternError reports a configured pattern that failed to compile. It names
// the offending pattern and carries the compiler's message; the scan skips
// the pattern and continues with the rest of the rule set.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Compiler compiles pattern strings into case-insensitive, multiline matchers
// and caches them per distinct pattern string. The cache lives for one
// configuration version; Invalidate clears it when the rule sets change.
//
// The regexp2 engine is used instead of the standard library because several
// stock patterns rely on lookaround assertions (negative lookbehind/lookahead)
// that regexp/syntax cannot express.
type Compiler struct {
	mu     sync.RWMutex
	cache  map[string]*cacheEntry
	logger *logger.Logger
}

// cacheEntry caches both outcomes of a compile so a broken pattern is not
// recompiled on every scan either.
type cacheEntry struct {
	re  *regexp2.Regexp
	err error
}

// NewCompiler creates a new pattern compiler with an empty cache
func NewCompiler(log *logger.Logger) *Compiler {
	return &Compiler{
		cache:  make(map[string]*cacheEntry),
		logger: log,
	}
}

// Compile returns a compiled matcher for the pattern, serving repeat requests
// from the cache. A failure is returned as a *PatternError.
func (c *Compiler) Compile(pattern string) (*regexp2.Regexp, error) {
	c.mu.RLock()
	entry, ok := c.cache[pattern]
	c.mu.RUnlock()

	if !ok {
		entry = c.compile(pattern)

		c.mu.Lock()
		c.cache[pattern] = entry
		c.mu.Unlock()
	}

	if entry.err != nil {
		return nil, entry.err
	}
	return entry.re, nil
}

func (c *Compiler) compile(pattern string) *cacheEntry {
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase|regexp2.Multiline)
	if err != nil {
		c.logger.Error("Invalid regex pattern",
			zap.String("pattern", pattern),
			zap.Error(err),
		)
		return &cacheEntry{err: &PatternError{Pattern: pattern, Err: err}}
	}

	re.MatchTimeout = MatchTimeout
	return &cacheEntry{re: re}
}

// Invalidate drops all cached matchers. Called when a new configuration
// snapshot replaces the rule sets.
func (c *Compiler) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Size returns the number of cached entries, including failed compiles.
func (c *Compiler) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// CompilePattern compiles a one-off case-insensitive, multiline pattern
// without touching a shared cache. Used by the ad-hoc pattern test surface.
func CompilePattern(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase|regexp2.Multiline)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// AllMatches returns every non-overlapping match of re in content, in order.
// An evaluation timeout is returned as an error so the caller can skip the
// pattern.
func AllMatches(re *regexp2.Regexp, content string) ([]*regexp2.Match, error) {
	var matches []*regexp2.Match

	m, err := re.FindStringMatch(content)
	if err != nil {
		return nil, err
	}
	for m != nil {
		matches = append(matches, m)
		m, err = re.FindNextMatch(m)
		if err != nil {
			return nil, err
		}
	}

	return matches, nil
}

// MatchText extracts the reportable text from a match: the first capturing
// group's text when the pattern declares one and the group participated,
// otherwise the whole match.
func MatchText(m *regexp2.Match) string {
	if m.GroupCount() > 1 {
		if g := m.GroupByNumber(1); g != nil && len(g.Captures) > 0 {
			return g.String()
		}
	}
	return m.String()
}
