package scanner

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/config"
	"github.com/dataguard/dataguard/internal/logger"
	"github.com/dataguard/dataguard/internal/rules"
)

// Engine runs the configured rule sets against content strings. Scanning is
// stateless and safe to call concurrently; all mutable state lives in the
// snapshot pointer and the compiler cache, both of which tolerate concurrent
// readers.
type Engine struct {
	snapshot atomic.Pointer[Snapshot]
	compiler *rules.Compiler
	logger   *logger.Logger
}

// New creates a new scan engine from the detection configuration
func New(cfg config.DetectionConfig, log *logger.Logger) *Engine {
	engine := &Engine{
		compiler: rules.NewCompiler(log),
		logger:   log,
	}
	engine.snapshot.Store(NewSnapshot(cfg))

	log.Info("Scan engine initialized",
		zap.Bool("sensitive_detection", cfg.EnableSensitiveDataDetection),
		zap.Bool("personal_detection", cfg.EnablePersonalDataDetection),
		zap.Int("sensitive_patterns", len(cfg.SensitivePatterns)),
		zap.Int("personal_patterns", len(cfg.PersonalPatterns)),
	)

	return engine
}

// Snapshot returns the current configuration snapshot
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Update atomically replaces the configuration snapshot and invalidates the
// compiled-pattern cache
func (e *Engine) Update(cfg config.DetectionConfig) {
	e.snapshot.Store(NewSnapshot(cfg))
	e.compiler.Invalidate()

	e.logger.Info("Scan engine configuration updated",
		zap.Int("sensitive_patterns", len(cfg.SensitivePatterns)),
		zap.Int("personal_patterns", len(cfg.PersonalPatterns)),
	)
}

// Scan runs the enabled rule sets against content and returns the violations
// found, sensitive first. It returns nothing when detection is disabled
// overall or the content is blank.
func (e *Engine) Scan(content string, ctx ScanContext) []Violation {
	snap := e.snapshot.Load()

	if !snap.Enabled() || strings.TrimSpace(content) == "" {
		return []Violation{}
	}

	violations := []Violation{}

	if snap.sensitiveEnabled {
		violations = append(violations, e.scanRuleSet(snap.sensitivePatterns, CategorySensitive, content, ctx)...)
	}

	if snap.personalEnabled {
		violations = append(violations, e.scanRuleSet(snap.personalPatterns, CategoryPersonal, content, ctx)...)
	}

	return violations
}

// ScanSensitive runs only the sensitive-data rule set against content,
// regardless of the category toggle. Scan is the toggle-aware entry point.
func (e *Engine) ScanSensitive(content string, ctx ScanContext) []Violation {
	return e.scanRuleSet(e.snapshot.Load().sensitivePatterns, CategorySensitive, content, ctx)
}

// ScanPersonal runs only the personal-data rule set against content
func (e *Engine) ScanPersonal(content string, ctx ScanContext) []Violation {
	return e.scanRuleSet(e.snapshot.Load().personalPatterns, CategoryPersonal, content, ctx)
}

// scanRuleSet evaluates one rule set in configured order, emitting one
// violation per non-overlapping match. A pattern that fails to compile or
// times out is skipped with a log entry; it never aborts the remaining
// patterns.
func (e *Engine) scanRuleSet(patterns []string, category Category, content string, ctx ScanContext) []Violation {
	violations := []Violation{}
	severity := severityFor(category)

	for index, pattern := range patterns {
		re, err := e.compiler.Compile(pattern)
		if err != nil {
			// Already logged by the compiler on first compile
			continue
		}

		matches, err := rules.AllMatches(re, content)
		if err != nil {
			e.logger.Error("Pattern evaluation failed",
				zap.String("category", string(category)),
				zap.Int("rule_index", index),
				zap.String("pattern", pattern),
				zap.Error(err),
			)
			continue
		}

		for _, m := range matches {
			violations = append(violations, Violation{
				Category:    category,
				RuleIndex:   index,
				Pattern:     pattern,
				MatchedText: rules.MatchText(m),
				Severity:    severity,
				Context:     ctx,
			})
		}
	}

	return violations
}

// severityFor maps a category to its fixed severity
func severityFor(category Category) Severity {
	if category == CategorySensitive {
		return SeverityHigh
	}
	return SeverityMedium
}
