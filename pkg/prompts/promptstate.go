package prompts

import (
	"slices"

	"github.com/jwebster45206/last-signal/pkg/state"
)

// PromptState is the compact context sent with narration and analysis
// requests. It is a reduced view of the narrative state.
type PromptState struct {
	Location      string   `json:"location"`
	RecentEvents  []string `json:"recent_events,omitempty"`
	Mood          string   `json:"mood"`
	Tension       int      `json:"tension"`
	Traits        []string `json:"traits,omitempty"`
	Inventory     []string `json:"inventory,omitempty"`
	ActivePersona string   `json:"active_ai,omitempty"`
}

// ToPromptState reduces a narrative state plus the recent event window.
func ToPromptState(ns *state.NarrativeState, recent []string) *PromptState {
	return &PromptState{
		Location:      ns.Location(),
		RecentEvents:  slices.Clone(recent),
		Mood:          ns.Mood,
		Tension:       ns.Tension,
		Traits:        slices.Clone(ns.Traits),
		Inventory:     slices.Clone(ns.Inventory),
		ActivePersona: ns.ActivePersona(),
	}
}
