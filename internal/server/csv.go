package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/violations"
)

// handleExportCSV streams the filtered violation records as CSV. Timestamps
// are rendered in the viewer's time zone ("tz" query parameter, defaulting to
// the configured export zone) with a zone suffix when it is not UTC.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zoneName := r.URL.Query().Get("tz")
	if zoneName == "" {
		zoneName = s.config.Server.ExportTimeZone
	}

	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid time zone: %s", zoneName))
		return
	}

	records, err := s.store.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to query violations for export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query violations")
		return
	}

	filename := fmt.Sprintf("data_protection_violations_%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := writeViolationsCSV(w, records, loc, zoneName, s.users); err != nil {
		s.logger.Error("CSV export failed", zap.Error(err))
	}
}

// writeViolationsCSV renders violation records as CSV rows
func writeViolationsCSV(w http.ResponseWriter, records []violations.Record, loc *time.Location, zoneName string, users UserDirectory) error {
	cw := csv.NewWriter(w)

	header := []string{"Created", "User", "Violation Type", "Match", "Severity", "IP Address", "Context"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			formatExportTime(rec.CreatedAt, loc, zoneName),
			userDisplayName(rec.UserID, users),
			violationTypeLabel(rec.ViolationType),
			rec.MatchContent,
			severityLabel(rec.Severity),
			stringOrEmpty(rec.IPAddress),
			stringOrEmpty(rec.Context),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatExportTime renders a timestamp in the viewer's zone, suffixing the
// zone name when it is not UTC
func formatExportTime(t time.Time, loc *time.Location, zoneName string) string {
	formatted := t.In(loc).Format("2006-01-02 15:04:05")
	if zoneName != "UTC" {
		formatted += fmt.Sprintf(" (%s)", zoneName)
	}
	return formatted
}

// userDisplayName resolves a record's user id to a display name, rendering
// the unknown placeholder for anonymous records or unresolvable ids
func userDisplayName(userID *int64, users UserDirectory) string {
	if userID == nil {
		return "unknown"
	}
	if users != nil {
		if name, ok := users.DisplayName(*userID); ok {
			return name
		}
	}
	return fmt.Sprintf("user #%d", *userID)
}

func violationTypeLabel(violationType string) string {
	switch violationType {
	case "sensitive_data":
		return "Sensitive data"
	case "personal_data":
		return "Personal data"
	default:
		return violationType
	}
}

func severityLabel(severity string) string {
	switch severity {
	case "high":
		return "High"
	case "medium":
		return "Medium"
	case "low":
		return "Low"
	default:
		return severity
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
