package inference

import (
	"testing"

	"lighthouse/internal/domain"
)

func TestParseConcern(t *testing.T) {
	cases := []struct {
		text string
		want domain.Concern
	}{
		{"This is a CRITICAL emergency", domain.ConcernCritical},
		{"high danger detected", domain.ConcernHigh},
		{"moderate concern", domain.ConcernMedium},
		{"scene looks normal and safe", domain.ConcernNone},
		{"minor issue only", domain.ConcernLow},
		{"completely unparseable gibberish", domain.ConcernLow},
	}
	for _, c := range cases {
		if got := ParseConcern(c.text); got != c.want {
			t.Errorf("ParseConcern(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}
