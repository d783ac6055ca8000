// Package profiles resolves a stream's scenario into the prompts and
// thresholds the Analysis Pipeline uses (SPEC_FULL.md component: Profile
// Registry).
package profiles

import (
	"fmt"
	"sync"

	"lighthouse/internal/domain"
)

// Thresholds gate the triage filter (spec.md §4.3 step 2).
type Thresholds struct {
	MotionScore    float64
	AudioLevel     float64
	VerifyConfMin  float64 // confidence below which high/critical triage forces cloud fallback
}

// Prompt holds the two prompt texts a scenario uses at each pipeline stage.
type Prompt struct {
	Triage   string
	Analysis string
}

// Profile is the full scenario configuration: prompts plus thresholds.
type Profile struct {
	Scenario   domain.Scenario `json:"scenario"`
	Prompt     Prompt          `json:"prompt"`
	Thresholds Thresholds      `json:"thresholds"`
}

func defaultProfiles() map[domain.Scenario]Profile {
	return map[domain.Scenario]Profile{
		domain.ScenarioPet: {
			Scenario: domain.ScenarioPet,
			Prompt: Prompt{
				Triage:   "Quickly check this frame for a pet in distress, escaping, or injured. Respond with a single concern word.",
				Analysis: "Describe the pet's condition and any visible signs of distress, injury, or unsafe behavior in detail.",
			},
			Thresholds: Thresholds{MotionScore: 0.35, AudioLevel: 0.4, VerifyConfMin: 0.6},
		},
		domain.ScenarioBaby: {
			Scenario: domain.ScenarioBaby,
			Prompt: Prompt{
				Triage:   "Quickly check this frame for an infant in an unsafe position, crying, or unattended near a hazard. Respond with a single concern word.",
				Analysis: "Describe the infant's position, visible hazards, and any signs of distress in detail.",
			},
			Thresholds: Thresholds{MotionScore: 0.25, AudioLevel: 0.3, VerifyConfMin: 0.7},
		},
		domain.ScenarioElderly: {
			Scenario: domain.ScenarioElderly,
			Prompt: Prompt{
				Triage:   "Quickly check this frame for a fall, immobility, or signs of medical distress. Respond with a single concern word.",
				Analysis: "Describe the person's posture, mobility, and any signs of a fall or medical emergency in detail.",
			},
			Thresholds: Thresholds{MotionScore: 0.2, AudioLevel: 0.35, VerifyConfMin: 0.7},
		},
	}
}

// Registry is a concurrency-safe, mutable scenario→profile lookup.
// Mutations are rare (admin-driven) so a single RWMutex is sufficient.
type Registry struct {
	mu       sync.RWMutex
	profiles map[domain.Scenario]Profile
}

// NewRegistry seeds the registry with the built-in defaults.
func NewRegistry() *Registry {
	return &Registry{profiles: defaultProfiles()}
}

// Get returns the profile for a scenario.
func (r *Registry) Get(scenario domain.Scenario) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[scenario]
	if !ok {
		return Profile{}, fmt.Errorf("profiles: unknown scenario %q", scenario)
	}
	return p, nil
}

// Upsert replaces or inserts a scenario's profile.
func (r *Registry) Upsert(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Scenario] = p
}

// Delete removes a scenario's profile, reverting lookups to an error.
func (r *Registry) Delete(scenario domain.Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, scenario)
}

// List returns every configured profile.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}
