package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/config"
	"github.com/dataguard/dataguard/internal/logger"
	"github.com/dataguard/dataguard/internal/scanner"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

// testServer builds a server around an engine, without a database. Handlers
// under test here never reach the store.
func testServer(detection config.DetectionConfig) *Server {
	cfg := config.GetDefaults()
	cfg.Detection = detection
	cfg.Events.Enabled = false

	return &Server{
		config: cfg,
		logger: nopLogger(),
		engine: scanner.New(detection, nopLogger()),
	}
}

func testDetection() config.DetectionConfig {
	cfg := config.GetDefaults().Detection
	cfg.SensitivePatterns = []string{`password\s*[:=]\s*\S+`, `ftp://\S+`}
	cfg.PersonalPatterns = []string{}
	cfg.ExcludedFields = []string{"tracker_id"}
	cfg.ExcludedProjects = []string{"sandbox"}
	return cfg
}

func TestHandleScanSkipsExcludedProject(t *testing.T) {
	s := testServer(testDetection())

	body := `{"content":"password: secret123","project_id":"sandbox","context":{"field":"description"}}`
	r := httptest.NewRequest("POST", "/api/v1/scan", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleScan(w, r)

	var resp scanResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Skipped {
		t.Error("Excluded project should skip scanning")
	}
	if len(resp.Violations) != 0 || resp.Blocked {
		t.Errorf("Skipped scan must report no violations: %+v", resp)
	}
}

func TestHandleScanSkipsExcludedField(t *testing.T) {
	s := testServer(testDetection())

	body := `{"content":"password: secret123","context":{"field":"tracker_id"}}`
	r := httptest.NewRequest("POST", "/api/v1/scan", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleScan(w, r)

	var resp scanResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Skipped {
		t.Error("Excluded field should skip scanning")
	}
}

func TestHandleScanCleanContent(t *testing.T) {
	s := testServer(testDetection())

	body := `{"content":"nothing to see here","context":{"field":"description"}}`
	r := httptest.NewRequest("POST", "/api/v1/scan", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleScan(w, r)

	var resp scanResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Violations) != 0 {
		t.Errorf("Clean content should produce no violations: %+v", resp.Violations)
	}
	if resp.Blocked || resp.Skipped {
		t.Errorf("Clean content should be neither blocked nor skipped: %+v", resp)
	}
	if resp.Message != "" {
		t.Errorf("Clean content should produce no message, got %q", resp.Message)
	}
}

func TestHandleScanContentTooLarge(t *testing.T) {
	detection := testDetection()
	detection.MaxContentLength = 16
	s := testServer(detection)

	body := `{"content":"this content is much longer than sixteen bytes"}`
	r := httptest.NewRequest("POST", "/api/v1/scan", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleScan(w, r)

	if w.Code != 413 {
		t.Errorf("Expected 413 for oversized content, got %d", w.Code)
	}
}

func TestHandlePatternTest(t *testing.T) {
	s := testServer(testDetection())

	t.Run("ValidPattern", func(t *testing.T) {
		body := `{"content":"call 123 or 456 or 123","pattern":"\\d+"}`
		r := httptest.NewRequest("POST", "/api/v1/patterns/test", strings.NewReader(body))
		w := httptest.NewRecorder()

		s.handlePatternTest(w, r)

		var resp struct {
			Success bool     `json:"success"`
			Matches []string `json:"matches"`
			Count   int      `json:"count"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !resp.Success {
			t.Fatal("Expected success for valid pattern")
		}
		if resp.Count != 3 {
			t.Errorf("Expected 3 total matches, got %d", resp.Count)
		}
		if len(resp.Matches) != 2 {
			t.Errorf("Expected 2 unique matches, got %v", resp.Matches)
		}
	})

	t.Run("InvalidPattern", func(t *testing.T) {
		body := `{"content":"abc","pattern":"[broken"}`
		r := httptest.NewRequest("POST", "/api/v1/patterns/test", strings.NewReader(body))
		w := httptest.NewRecorder()

		s.handlePatternTest(w, r)

		var resp struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Success {
			t.Error("Expected failure for invalid pattern")
		}
		if resp.Error == "" {
			t.Error("Expected a compile-error message")
		}
	})

	t.Run("MissingInput", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/v1/patterns/test", strings.NewReader(`{"content":"abc"}`))
		w := httptest.NewRecorder()

		s.handlePatternTest(w, r)

		if w.Code != 400 {
			t.Errorf("Expected 400 for missing pattern, got %d", w.Code)
		}
	})
}

func TestParseFilter(t *testing.T) {
	t.Run("DefaultsToRowCap", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/violations", nil)
		filter, err := parseFilter(r)
		if err != nil {
			t.Fatalf("parseFilter failed: %v", err)
		}
		if filter.Limit != maxQueryLimit {
			t.Errorf("Expected default limit %d, got %d", maxQueryLimit, filter.Limit)
		}
	})

	t.Run("InvalidUserID", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/violations?user_id=bogus", nil)
		if _, err := parseFilter(r); err == nil {
			t.Error("Expected error for non-numeric user id")
		}
	})

	t.Run("Dates", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/violations?from_date=2026-01-01&to_date=2026-01-31", nil)
		filter, err := parseFilter(r)
		if err != nil {
			t.Fatalf("parseFilter failed: %v", err)
		}
		if filter.FromDate == nil || filter.ToDate == nil {
			t.Fatal("Date bounds not parsed")
		}
		if !filter.ToDate.After(*filter.FromDate) {
			t.Error("to_date should land after from_date")
		}
	})

	t.Run("LimitCapped", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/violations?limit=5000", nil)
		filter, err := parseFilter(r)
		if err != nil {
			t.Fatalf("parseFilter failed: %v", err)
		}
		if filter.Limit != maxQueryLimit {
			t.Errorf("Limit above cap should clamp to %d, got %d", maxQueryLimit, filter.Limit)
		}
	})
}
