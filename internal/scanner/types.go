package scanner

import "github.com/dataguard/dataguard/internal/config"

// Category identifies which rule set produced a violation
type Category string

const (
	CategorySensitive Category = "sensitive_data"
	CategoryPersonal  Category = "personal_data"
)

// Severity ranks a violation. The engine assigns severity by category:
// sensitive data is high, personal data is medium. Low is reserved and never
// emitted by the engine itself.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ScanContext describes where the scanned content came from. It is carried
// through to the logged violation and never interpreted by the engine.
// Conventional keys: "field", "model", "id", and optionally a parent entity id.
type ScanContext map[string]interface{}

// Field returns the "field" entry, if the context carries one
func (c ScanContext) Field() string {
	if f, ok := c["field"].(string); ok {
		return f
	}
	return ""
}

// Violation is a single pattern match produced during one scan call. It is
// immutable: either discarded by the caller or handed to the violation store.
type Violation struct {
	Category    Category    `json:"category"`
	RuleIndex   int         `json:"ruleIndex"`
	Pattern     string      `json:"pattern"`
	MatchedText string      `json:"matchedText"`
	Severity    Severity    `json:"severity"`
	Context     ScanContext `json:"context"`
}

// Snapshot is an immutable view of the detection configuration. The engine
// swaps snapshots atomically on reload, so a scan in flight observes either
// the old or the new configuration in its entirety, never a mix.
type Snapshot struct {
	sensitiveEnabled bool
	personalEnabled  bool
	blockSubmission  bool
	logViolations    bool
	logToDatabase    bool

	sensitivePatterns []string
	personalPatterns  []string

	excludedFields   map[string]struct{}
	excludedProjects map[string]struct{}
}

// NewSnapshot builds an immutable snapshot from the detection configuration
func NewSnapshot(cfg config.DetectionConfig) *Snapshot {
	snap := &Snapshot{
		sensitiveEnabled:  cfg.EnableSensitiveDataDetection,
		personalEnabled:   cfg.EnablePersonalDataDetection,
		blockSubmission:   cfg.BlockSubmission,
		logViolations:     cfg.LogViolations,
		logToDatabase:     cfg.LogToDatabase,
		sensitivePatterns: append([]string(nil), cfg.SensitivePatterns...),
		personalPatterns:  append([]string(nil), cfg.PersonalPatterns...),
		excludedFields:    make(map[string]struct{}, len(cfg.ExcludedFields)),
		excludedProjects:  make(map[string]struct{}, len(cfg.ExcludedProjects)),
	}

	for _, f := range cfg.ExcludedFields {
		snap.excludedFields[f] = struct{}{}
	}
	for _, p := range cfg.ExcludedProjects {
		snap.excludedProjects[p] = struct{}{}
	}

	return snap
}

// Enabled reports whether detection is enabled overall
func (s *Snapshot) Enabled() bool {
	return s.sensitiveEnabled || s.personalEnabled
}

// SensitiveEnabled reports whether the sensitive-data rule set runs
func (s *Snapshot) SensitiveEnabled() bool { return s.sensitiveEnabled }

// PersonalEnabled reports whether the personal-data rule set runs
func (s *Snapshot) PersonalEnabled() bool { return s.personalEnabled }

// LogViolations reports whether violations are logged at all
func (s *Snapshot) LogViolations() bool { return s.logViolations }

// LogToDatabase reports whether violations are persisted to the database
func (s *Snapshot) LogToDatabase() bool { return s.logToDatabase }

// SensitivePatterns returns the sensitive rule set in configured order
func (s *Snapshot) SensitivePatterns() []string { return s.sensitivePatterns }

// PersonalPatterns returns the personal rule set in configured order
func (s *Snapshot) PersonalPatterns() []string { return s.personalPatterns }
