package violations

import (
	"time"
)

// Record is the persisted, queryable form of a violation, enriched with
// request metadata. Records are append-only by convention: never updated
// after creation, deleted only by the retention operations.
type Record struct {
	ID            int64      `db:"id" json:"id"`
	UserID        *int64     `db:"user_id" json:"user_id,omitempty"`
	ViolationType string     `db:"violation_type" json:"violation_type"`
	Pattern       string     `db:"pattern" json:"pattern"`
	MatchContent  string     `db:"match_content" json:"match_content"`
	Severity      string     `db:"severity" json:"severity"`
	Context       *string    `db:"context" json:"context,omitempty"`
	IPAddress     *string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent     *string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// RequestMeta carries the request-level metadata recorded alongside a
// violation
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Filter narrows a violation query. All present fields apply conjunctively;
// the date range only takes effect when both bounds are present.
type Filter struct {
	UserID        *int64
	ViolationType string
	FromDate      *time.Time
	ToDate        *time.Time
	Limit         int
}

// Stats aggregates violation counts over the whole table. Today, week and
// month are rolling windows ending at call time.
type Stats struct {
	TotalCount     int64      `json:"total_count"`
	SensitiveCount int64      `json:"sensitive_count"`
	PersonalCount  int64      `json:"personal_count"`
	TodayCount     int64      `json:"today_count"`
	WeekCount      int64      `json:"week_count"`
	MonthCount     int64      `json:"month_count"`
	OldestRecord   *time.Time `json:"oldest_record,omitempty"`
	NewestRecord   *time.Time `json:"newest_record,omitempty"`
}

// Settings exposes the logging toggles the store consults on every call. The
// scan engine's configuration snapshot satisfies this interface, so the store
// always sees the currently active configuration.
type Settings interface {
	LogViolations() bool
	LogToDatabase() bool
}
