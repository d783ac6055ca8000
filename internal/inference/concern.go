package inference

import (
	"strings"

	"lighthouse/internal/domain"
)

// ParseConcern maps a free-text model response to a Concern by keyword,
// per spec.md §4.3 step 1. Unknown text maps to low, not none: an
// unparseable response should never silently suppress an alert.
func ParseConcern(text string) domain.Concern {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "critical", "emergency"):
		return domain.ConcernCritical
	case containsAny(lower, "high", "urgent", "danger"):
		return domain.ConcernHigh
	case containsAny(lower, "medium", "moderate"):
		return domain.ConcernMedium
	case containsAny(lower, "none", "normal", "safe"):
		return domain.ConcernNone
	case containsAny(lower, "low", "minor"):
		return domain.ConcernLow
	default:
		return domain.ConcernLow
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
