package scanner

import (
	"fmt"
	"strings"
)

// categoryLabel is the human-readable noun used in rejection messages
func categoryLabel(category Category) string {
	switch category {
	case CategorySensitive:
		return "sensitive-data"
	case CategoryPersonal:
		return "personal-data"
	default:
		return string(category)
	}
}

// FormatMessage renders a set of violations into a single rejection message
// for the submitter: one header per category with the violation count, one
// indented line per matched text, and a closing instruction to remove the
// flagged content and resubmit. Returns "" for an empty set.
//
// Violations are grouped by category in first-seen order, so the message
// mirrors the order the scan produced them in.
func FormatMessage(violations []Violation) string {
	if len(violations) == 0 {
		return ""
	}

	var order []Category
	grouped := make(map[Category][]Violation)
	for _, v := range violations {
		if _, seen := grouped[v.Category]; !seen {
			order = append(order, v.Category)
		}
		grouped[v.Category] = append(grouped[v.Category], v)
	}

	var lines []string
	for _, category := range order {
		group := grouped[category]
		lines = append(lines, fmt.Sprintf("Detected %d %s items:", len(group), categoryLabel(category)))
		for _, v := range group {
			lines = append(lines, fmt.Sprintf("  - %s", v.MatchedText))
		}
	}

	lines = append(lines, "\nPlease remove the sensitive or personal data above and resubmit.")

	return strings.Join(lines, "\n")
}
