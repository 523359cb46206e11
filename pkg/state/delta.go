package state

import "strings"

// Impact is the overall direction of a player choice.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

const (
	MinTensionDelta = -2
	MaxTensionDelta = 2
)

// ChoiceAnalysis is the compact change set produced by analysing a player
// choice. It is much cheaper for the model to produce than a full state.
type ChoiceAnalysis struct {
	Impact       Impact   `json:"impact"`
	Traits       []string `json:"traits"`
	TensionDelta int      `json:"tension_change"`
}

// NeutralAnalysis is the no-op result used when analysis is unavailable.
func NeutralAnalysis() ChoiceAnalysis {
	return ChoiceAnalysis{Impact: ImpactNeutral, Traits: []string{}}
}

// Normalize coerces a model-produced analysis into range: unknown impacts
// become neutral, the delta is clamped to [-2,2] and traits are trimmed,
// lowercased and deduplicated.
func (a ChoiceAnalysis) Normalize() ChoiceAnalysis {
	out := ChoiceAnalysis{
		Impact:       Impact(strings.ToLower(strings.TrimSpace(string(a.Impact)))),
		Traits:       []string{},
		TensionDelta: clamp(a.TensionDelta, MinTensionDelta, MaxTensionDelta),
	}
	switch out.Impact {
	case ImpactPositive, ImpactNegative, ImpactNeutral:
	default:
		out.Impact = ImpactNeutral
	}

	seen := make(map[string]bool, len(a.Traits))
	for _, t := range a.Traits {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out.Traits = append(out.Traits, t)
	}
	return out
}

// IsEmpty reports whether applying the analysis would change nothing.
func (a ChoiceAnalysis) IsEmpty() bool {
	return (a.Impact == "" || a.Impact == ImpactNeutral) && len(a.Traits) == 0 && a.TensionDelta == 0
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
