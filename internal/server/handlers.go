package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/events"
	"github.com/dataguard/dataguard/internal/rules"
	"github.com/dataguard/dataguard/internal/scanner"
	"github.com/dataguard/dataguard/internal/violations"
)

// maxQueryLimit caps the violation list and export row counts
const maxQueryLimit = 1000

// dateLayout is the accepted format for from_date/to_date filters
const dateLayout = "2006-01-02"

type scanRequest struct {
	Content   string              `json:"content"`
	Context   scanner.ScanContext `json:"context"`
	ProjectID *string             `json:"project_id,omitempty"`
	UserID    *int64              `json:"user_id,omitempty"`
}

type scanResponse struct {
	Violations []scanner.Violation `json:"violations"`
	Message    string              `json:"message,omitempty"`
	Blocked    bool                `json:"blocked"`
	Skipped    bool                `json:"skipped,omitempty"`
}

// handleScan scans submitted content against the configured rule sets and
// reports the violations, the formatted rejection message, and whether the
// caller must abort its write.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Content) > s.config.Detection.MaxContentLength {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("content exceeds maximum length of %d bytes", s.config.Detection.MaxContentLength))
		return
	}

	snap := s.engine.Snapshot()

	if snap.ShouldSkipRecord(req.ProjectID) {
		writeJSON(w, http.StatusOK, scanResponse{Violations: []scanner.Violation{}, Skipped: true})
		return
	}

	if field := req.Context.Field(); field != "" && snap.ShouldSkipField(field) {
		writeJSON(w, http.StatusOK, scanResponse{Violations: []scanner.Violation{}, Skipped: true})
		return
	}

	found := s.engine.Scan(req.Content, req.Context)

	meta := violations.RequestMeta{
		IPAddress: resolveClientIP(r),
		UserAgent: r.UserAgent(),
	}

	persisted := false
	for _, v := range found {
		if rec := s.store.Record(r.Context(), v, meta, req.UserID); rec != nil {
			persisted = true
		}

		if s.config.Events.Enabled {
			s.hub.Broadcast(events.Event{
				Type:      events.EventTypeViolation,
				Timestamp: time.Now(),
				Data:      v,
			})
		}
	}

	if persisted && s.statsCache != nil {
		s.statsCache.Invalidate(r.Context())
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Violations: found,
		Message:    scanner.FormatMessage(found),
		Blocked:    snap.ShouldBlock(found),
	})
}

// handleListViolations returns violation records matching the query filters,
// newest first, capped at 1000 rows
func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.store.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to query violations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query violations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"violations": records,
		"count":      len(records),
	})
}

// handleStats returns aggregate violation statistics, served from the Redis
// cache when one is configured
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.statsCache != nil {
		if stats, ok := s.statsCache.Get(r.Context()); ok {
			writeJSON(w, http.StatusOK, stats)
			return
		}
	}

	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		s.logger.Error("Failed to compute statistics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	if s.statsCache != nil {
		s.statsCache.Set(r.Context(), stats)
	}

	writeJSON(w, http.StatusOK, stats)
}

type cleanupRequest struct {
	Days          int    `json:"days"`
	ViolationType string `json:"violation_type,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// handleCleanup deletes violation records older than the requested age,
// optionally scoped by category or by user (mutually exclusive)
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ViolationType != "" && req.UserID != "" {
		writeError(w, http.StatusBadRequest, "specify either violation_type or user_id, not both")
		return
	}

	var deleted int64
	var err error

	switch {
	case req.ViolationType != "":
		if req.ViolationType != string(scanner.CategorySensitive) && req.ViolationType != string(scanner.CategoryPersonal) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown violation type: %s", req.ViolationType))
			return
		}
		deleted, err = s.store.DeleteOlderThanByCategory(r.Context(), req.Days, req.ViolationType)

	case req.UserID != "":
		userID, parseErr := strconv.ParseInt(req.UserID, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user id: %s", req.UserID))
			return
		}
		deleted, err = s.store.DeleteOlderThanByUser(r.Context(), req.Days, userID)

	default:
		deleted, err = s.store.DeleteOlderThan(r.Context(), req.Days)
	}

	if err != nil {
		s.logger.Error("Cleanup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	if s.statsCache != nil {
		s.statsCache.Invalidate(r.Context())
	}

	if s.config.Events.Enabled {
		s.hub.Broadcast(events.Event{
			Type:      events.EventTypeCleanup,
			Timestamp: time.Now(),
			Data:      map[string]int64{"deleted": deleted},
		})
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

type patternTestRequest struct {
	Content string `json:"content"`
	Pattern string `json:"pattern"`
}

// handlePatternTest compiles an ad-hoc pattern and runs it against the
// supplied content, returning the matches or the compiler's error message
func (s *Server) handlePatternTest(w http.ResponseWriter, r *http.Request) {
	var req patternTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" || req.Pattern == "" {
		writeError(w, http.StatusBadRequest, "please provide both content and pattern")
		return
	}

	re, err := rules.CompilePattern(req.Pattern)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	matches, err := rules.AllMatches(re, req.Content)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("pattern evaluation failed: %v", err),
		})
		return
	}

	seen := make(map[string]struct{})
	unique := []string{}
	for _, m := range matches {
		text := rules.MatchText(m)
		if _, dup := seen[text]; !dup {
			seen[text] = struct{}{}
			unique = append(unique, text)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"matches": unique,
		"count":   len(matches),
	})
}

// parseFilter builds a violation query filter from request parameters
func parseFilter(r *http.Request) (violations.Filter, error) {
	filter := violations.Filter{Limit: maxQueryLimit}
	q := r.URL.Query()

	if raw := q.Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid user id: %s", raw)
		}
		filter.UserID = &userID
	}

	if vt := q.Get("violation_type"); vt != "" {
		filter.ViolationType = vt
	}

	if raw := q.Get("from_date"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid from_date: %s", raw)
		}
		filter.FromDate = &from
	}

	if raw := q.Get("to_date"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid to_date: %s", raw)
		}
		// Inclusive end of day
		to = to.Add(24*time.Hour - time.Nanosecond)
		filter.ToDate = &to
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit: %s", raw)
		}
		if limit < maxQueryLimit {
			filter.Limit = limit
		}
	}

	return filter, nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
