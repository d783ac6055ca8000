package profiles

import (
	"testing"

	"lighthouse/internal/domain"
)

func TestGet_KnownScenario(t *testing.T) {
	r := NewRegistry()
	p, err := r.Get(domain.ScenarioBaby)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Prompt.Triage == "" || p.Prompt.Analysis == "" {
		t.Fatal("expected non-empty prompts")
	}
}

func TestGet_UnknownScenario(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("unknown"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}

func TestUpsertThenDelete(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Profile{Scenario: "custom", Prompt: Prompt{Triage: "t", Analysis: "a"}})

	if _, err := r.Get("custom"); err != nil {
		t.Fatalf("expected custom scenario to exist: %v", err)
	}

	r.Delete("custom")
	if _, err := r.Get("custom"); err == nil {
		t.Fatal("expected custom scenario to be gone after delete")
	}
}

func TestList_IncludesDefaults(t *testing.T) {
	r := NewRegistry()
	if len(r.List()) != 3 {
		t.Fatalf("expected 3 default profiles, got %d", len(r.List()))
	}
}
