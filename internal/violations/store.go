package violations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/logger"
	"github.com/dataguard/dataguard/internal/scanner"
)

// Store is the durable, queryable violation log backed by PostgreSQL.
// Concurrent inserts from parallel scans rely on the database's own row-level
// isolation; the store adds no locking of its own.
type Store struct {
	db       *sqlx.DB
	settings func() Settings
	logger   *logger.Logger
}

// NewStore connects to the database, configures the connection pool and
// ensures the violation schema exists
func NewStore(cfg *Config, settings func() Settings, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &Store{
		db:       db,
		settings: settings,
		logger:   log,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize violation store: %w", err)
	}

	log.Info("Violation store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

// Config contains database configuration for the violation store
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// initialize checks the connection and applies the schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}

// Record logs a violation. It is a no-op unless violation logging is enabled.
// A structured diagnostic line is always emitted; the violation is
// additionally persisted when database logging is enabled. A persistence
// failure is logged and swallowed: losing an audit record must never block a
// legitimate content submission, so Record returns the persisted record or
// nil, never an error.
func (s *Store) Record(ctx context.Context, v scanner.Violation, meta RequestMeta, userID *int64) *Record {
	settings := s.settings()
	if !settings.LogViolations() {
		return nil
	}

	contextJSON := marshalContext(v.Context)

	s.logger.Warn("Data protection violation",
		zap.Any("user_id", userID),
		zap.String("violation_type", string(v.Category)),
		zap.Int("rule_index", v.RuleIndex),
		zap.String("pattern", v.Pattern),
		zap.String("match", v.MatchedText),
		zap.String("severity", string(v.Severity)),
		zap.String("context", contextJSON),
		zap.String("ip_address", meta.IPAddress),
		zap.String("user_agent", meta.UserAgent),
	)

	if !settings.LogToDatabase() {
		return nil
	}

	if err := validateViolation(v); err != nil {
		s.logger.Error("Refusing to persist malformed violation", zap.Error(err))
		return nil
	}

	record := &Record{
		UserID:        userID,
		ViolationType: string(v.Category),
		Pattern:       v.Pattern,
		MatchContent:  v.MatchedText,
		Severity:      string(v.Severity),
		Context:       optional(contextJSON),
		IPAddress:     optional(meta.IPAddress),
		UserAgent:     optional(meta.UserAgent),
	}

	query := `
		INSERT INTO data_protection_violations
			(user_id, violation_type, pattern, match_content, severity, context, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		record.UserID,
		record.ViolationType,
		record.Pattern,
		record.MatchContent,
		record.Severity,
		record.Context,
		record.IPAddress,
		record.UserAgent,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)

	if err != nil {
		s.logger.Error("Failed to persist violation record",
			zap.Error(err),
			zap.String("violation_type", record.ViolationType),
		)
		return nil
	}

	s.logger.Debug("Violation record persisted",
		zap.Int64("id", record.ID),
		zap.String("violation_type", record.ViolationType))

	return record
}

// validateViolation enforces the record invariants before insert
func validateViolation(v scanner.Violation) error {
	if v.Category != scanner.CategorySensitive && v.Category != scanner.CategoryPersonal {
		return fmt.Errorf("invalid violation category: %q", v.Category)
	}
	if v.Severity != scanner.SeverityLow && v.Severity != scanner.SeverityMedium && v.Severity != scanner.SeverityHigh {
		return fmt.Errorf("invalid violation severity: %q", v.Severity)
	}
	if v.Pattern == "" {
		return fmt.Errorf("violation pattern is empty")
	}
	if v.MatchedText == "" {
		return fmt.Errorf("violation matched text is empty")
	}
	return nil
}

// Query returns violation records matching the filter, newest first. All
// filter fields apply conjunctively; the date range requires both bounds.
// Returns an empty list when database logging is disabled.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Record, error) {
	if !s.settings().LogToDatabase() {
		return []Record{}, nil
	}

	where, args := buildFilter(filter)

	query := `
		SELECT id, user_id, violation_type, pattern, match_content, severity,
		       context, ip_address, user_agent, created_at, updated_at
		FROM data_protection_violations` + where + `
		ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filter.Limit)
	}

	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		s.logger.Error("Violation query failed", zap.Error(err))
		return nil, fmt.Errorf("violation query failed: %w", err)
	}

	return records, nil
}

// buildFilter assembles the WHERE clause and positional arguments for a filter
func buildFilter(filter Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	next := func() int { return len(args) + 1 }

	if filter.UserID != nil {
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", next()))
		args = append(args, *filter.UserID)
	}

	if filter.ViolationType != "" {
		clauses = append(clauses, fmt.Sprintf("violation_type = $%d", next()))
		args = append(args, filter.ViolationType)
	}

	// The date range only takes effect with both bounds present
	if filter.FromDate != nil && filter.ToDate != nil {
		clauses = append(clauses, fmt.Sprintf("created_at BETWEEN $%d AND $%d", next(), next()+1))
		args = append(args, *filter.FromDate, *filter.ToDate)
	}

	if len(clauses) == 0 {
		return "", args
	}

	return "\n\t\tWHERE " + strings.Join(clauses, " AND "), args
}

// Statistics computes aggregate counts over the whole table. Today, week and
// month are rolling windows ending at call time.
func (s *Store) Statistics(ctx context.Context) (*Stats, error) {
	now := time.Now()
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN violation_type = 'sensitive_data' THEN 1 END) AS sensitive,
			COUNT(CASE WHEN violation_type = 'personal_data' THEN 1 END) AS personal,
			COUNT(CASE WHEN created_at >= $1 THEN 1 END) AS today,
			COUNT(CASE WHEN created_at >= $2 THEN 1 END) AS week,
			COUNT(CASE WHEN created_at >= $3 THEN 1 END) AS month,
			MIN(created_at) AS oldest,
			MAX(created_at) AS newest
		FROM data_protection_violations`

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx, query,
		now.AddDate(0, 0, -1),
		now.AddDate(0, 0, -7),
		now.AddDate(0, 0, -30),
	).Scan(
		&stats.TotalCount,
		&stats.SensitiveCount,
		&stats.PersonalCount,
		&stats.TodayCount,
		&stats.WeekCount,
		&stats.MonthCount,
		&oldest,
		&newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute violation statistics: %w", err)
	}

	if oldest.Valid {
		stats.OldestRecord = &oldest.Time
	}
	if newest.Valid {
		stats.NewestRecord = &newest.Time
	}

	return stats, nil
}

// DeleteOlderThan removes all records strictly older than now minus days and
// returns the count removed. Non-positive days defaults to 30.
func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	return s.deleteOlderThan(ctx, days, "", nil)
}

// DeleteOlderThanByCategory removes old records of a single violation category
func (s *Store) DeleteOlderThanByCategory(ctx context.Context, days int, category string) (int64, error) {
	return s.deleteOlderThan(ctx, days, category, nil)
}

// DeleteOlderThanByUser removes old records belonging to a single user
func (s *Store) DeleteOlderThanByUser(ctx context.Context, days int, userID int64) (int64, error) {
	return s.deleteOlderThan(ctx, days, "", &userID)
}

// deleteOlderThan runs the retention delete in a single statement, so it
// completes or fails atomically. Category and user scoping are mutually
// exclusive per call; the exported wrappers enforce that.
func (s *Store) deleteOlderThan(ctx context.Context, days int, category string, userID *int64) (int64, error) {
	days = normalizeDays(days)
	cutoff := time.Now().AddDate(0, 0, -days)

	query := "DELETE FROM data_protection_violations WHERE created_at < $1"
	args := []interface{}{cutoff}

	if category != "" {
		query += " AND violation_type = $2"
		args = append(args, category)
	} else if userID != nil {
		query += " AND user_id = $2"
		args = append(args, *userID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Retention delete failed", zap.Error(err), zap.Int("days", days))
		return 0, fmt.Errorf("retention delete failed: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}

	s.logger.Info("Old violation records deleted",
		zap.Int64("deleted", deleted),
		zap.Int("days", days),
		zap.String("category", category),
		zap.Any("user_id", userID))

	return deleted, nil
}

// normalizeDays coerces the retention age to a positive day count
func normalizeDays(days int) int {
	if days <= 0 {
		return 30
	}
	return days
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// marshalContext renders the scan context as JSON for the context column
func marshalContext(ctx scanner.ScanContext) string {
	if len(ctx) == 0 {
		return ""
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return ""
	}
	return string(data)
}

// optional maps the empty string to a NULL column value
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
