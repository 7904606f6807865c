package scanner

import (
	"strings"
	"testing"
)

func TestFormatMessage(t *testing.T) {
	t.Run("EmptyViolations", func(t *testing.T) {
		if msg := FormatMessage(nil); msg != "" {
			t.Errorf("Expected no message for empty violations, got %q", msg)
		}
		if msg := FormatMessage([]Violation{}); msg != "" {
			t.Errorf("Expected no message for empty violations, got %q", msg)
		}
	})

	t.Run("MixedCategories", func(t *testing.T) {
		msg := FormatMessage([]Violation{
			{Category: CategorySensitive, MatchedText: "password: secret123", Severity: SeverityHigh},
			{Category: CategoryPersonal, MatchedText: "john.doe@example.com", Severity: SeverityMedium},
		})

		for _, want := range []string{
			"Detected 1 sensitive-data items:",
			"Detected 1 personal-data items:",
			"  - password: secret123",
			"  - john.doe@example.com",
			"remove the sensitive or personal data above and resubmit",
		} {
			if !strings.Contains(msg, want) {
				t.Errorf("Message missing %q:\n%s", want, msg)
			}
		}
	})

	t.Run("GroupsByCategoryFirstSeenOrder", func(t *testing.T) {
		msg := FormatMessage([]Violation{
			{Category: CategoryPersonal, MatchedText: "a@b.co"},
			{Category: CategorySensitive, MatchedText: "pwd=x"},
			{Category: CategoryPersonal, MatchedText: "c@d.co"},
		})

		personalIdx := strings.Index(msg, "Detected 2 personal-data items:")
		sensitiveIdx := strings.Index(msg, "Detected 1 sensitive-data items:")
		if personalIdx < 0 || sensitiveIdx < 0 {
			t.Fatalf("Missing category headers:\n%s", msg)
		}
		if personalIdx > sensitiveIdx {
			t.Error("Categories should appear in first-seen order")
		}

		// Both personal matches grouped under the one header
		personalSection := msg[personalIdx:sensitiveIdx]
		if !strings.Contains(personalSection, "a@b.co") || !strings.Contains(personalSection, "c@d.co") {
			t.Errorf("Personal matches not grouped together:\n%s", msg)
		}
	})
}
