// Package profile loads the seed CognitiveProfile. The profile is a display
// and seed artifact: read once at startup, never written by any analytics
// component.
package profile

import (
	"fmt"
	"os"

	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
	"gopkg.in/yaml.v3"
)

// Seed returns the built-in cognitive profile: five fixed attribute groups
// with scores in [0,1].
func Seed() types.CognitiveProfile {
	return types.CognitiveProfile{
		Cognitive: map[string]float64{
			"pattern_recognition":    0.95,
			"systems_thinking":       0.93,
			"strategic_depth":        0.92,
			"abstraction_capability": 0.94,
			"meta_cognition":         0.91,
		},
		Behavioral: map[string]float64{
			"risk_tolerance":        0.85,
			"experimentation_drive": 0.88,
			"complexity_comfort":    0.92,
			"control_optimization":  0.87,
			"innovation_focus":      0.91,
		},
		Communication: map[string]float64{
			"directness":               0.89,
			"provocation_tolerance":    0.85,
			"substance_preference":     0.93,
			"manipulation_sensitivity": 0.88,
			"depth_seeking":            0.91,
		},
		Shadow: map[string]float64{
			"cognitive_overload_risk": 0.72,
			"perfectionism":           0.85,
			"control_tendency":        0.79,
			"rumination_risk":         0.68,
			"trust_deficit":           0.74,
		},
		Domains: map[string]float64{
			"ai_integration":         0.94,
			"full_stack_development": 0.91,
			"trading_analytics":      0.87,
			"business_strategy":      0.84,
			"psychological_analysis": 0.86,
		},
	}
}

// Load reads a profile from a yaml file. Missing or empty path falls back to
// the built-in seed. Groups absent from the file keep their seed values.
func Load(path string) (types.CognitiveProfile, error) {
	p := Seed()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("Profile seed %s not found, using built-in seed", path)
			return p, nil
		}
		return p, fmt.Errorf("failed to read profile seed: %w", err)
	}

	var loaded types.CognitiveProfile
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return p, fmt.Errorf("failed to parse profile seed %s: %w", path, err)
	}

	if loaded.Cognitive != nil {
		p.Cognitive = loaded.Cognitive
	}
	if loaded.Behavioral != nil {
		p.Behavioral = loaded.Behavioral
	}
	if loaded.Communication != nil {
		p.Communication = loaded.Communication
	}
	if loaded.Shadow != nil {
		p.Shadow = loaded.Shadow
	}
	if loaded.Domains != nil {
		p.Domains = loaded.Domains
	}

	logging.Boot("Profile seed loaded from %s", path)
	return p, nil
}
