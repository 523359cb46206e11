package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Well-known variable names that form the stable save-file schema.
const (
	VarLocation           = "current_location"
	VarActivePersona      = "current_ai"
	VarLastPlayerInput    = "last_player_input"
	VarSignalStrength     = "signal_strength"
	VarConsciousnessLevel = "consciousness_level"
	VarTimeElapsed        = "time_elapsed"
)

const (
	InitialTension = 5
	MinTension     = 0
	MaxTension     = 10
	InitialMood    = "mysterious"
)

var ErrInvalidValue = errors.New("invalid variable value")

// NarrativeState is the mutable key/value store shared by the story walker
// and the AI layer. It is the unit that gets saved and loaded.
type NarrativeState struct {
	Vars      map[string]any `json:"vars"`
	Inventory []string       `json:"inventory"`
	Traits    []string       `json:"traits"`
	Tension   int            `json:"tension"`
	Mood      string         `json:"mood"`
	StartedAt time.Time      `json:"started_at"`
}

// New creates a narrative state seeded with the given variables.
func New(initial map[string]any) *NarrativeState {
	ns := &NarrativeState{}
	ns.Reset(initial)
	return ns
}

// Reset discards everything and re-seeds the variables.
func (ns *NarrativeState) Reset(initial map[string]any) {
	ns.Vars = make(map[string]any, len(initial))
	for k, v := range initial {
		if nv, err := normalize(v); err == nil {
			ns.Vars[k] = nv
		}
	}
	ns.Inventory = []string{}
	ns.Traits = []string{}
	ns.Tension = InitialTension
	ns.Mood = InitialMood
	ns.StartedAt = time.Now().UTC()
}

// Get returns a variable.
func (ns *NarrativeState) Get(name string) (any, bool) {
	v, ok := ns.Vars[name]
	return v, ok
}

// SetVar sets a variable. Only strings, numbers and booleans are accepted;
// numbers are stored as float64 so values survive a JSON round trip.
func (ns *NarrativeState) SetVar(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: empty variable name", ErrInvalidValue)
	}
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	if ns.Vars == nil {
		ns.Vars = make(map[string]any)
	}
	ns.Vars[name] = v
	return nil
}

// String returns a variable as a string, or "" if unset or not a string.
func (ns *NarrativeState) String(name string) string {
	s, _ := ns.Vars[name].(string)
	return s
}

// Number returns a numeric variable.
func (ns *NarrativeState) Number(name string) (float64, bool) {
	f, ok := ns.Vars[name].(float64)
	return f, ok
}

func (ns *NarrativeState) Location() string {
	if loc := ns.String(VarLocation); loc != "" {
		return loc
	}
	return "Unknown"
}

// ActivePersona returns the persona the player is talking to, if any.
func (ns *NarrativeState) ActivePersona() string {
	return ns.String(VarActivePersona)
}

func (ns *NarrativeState) SetActivePersona(id string) {
	ns.Vars[VarActivePersona] = id
}

func (ns *NarrativeState) LastPlayerInput() string {
	return ns.String(VarLastPlayerInput)
}

func (ns *NarrativeState) SetLastPlayerInput(input string) {
	ns.Vars[VarLastPlayerInput] = input
}

// AddItem adds an item to the inventory. Duplicates are ignored.
func (ns *NarrativeState) AddItem(item string) {
	if item == "" || ns.HasItem(item) {
		return
	}
	ns.Inventory = append(ns.Inventory, item)
}

func (ns *NarrativeState) HasItem(item string) bool {
	return slices.Contains(ns.Inventory, item)
}

// AddTrait records a trait once, keeping discovery order.
func (ns *NarrativeState) AddTrait(trait string) {
	if trait == "" || slices.Contains(ns.Traits, trait) {
		return
	}
	ns.Traits = append(ns.Traits, trait)
}

// PlayTime returns the time since the state was created or reset.
func (ns *NarrativeState) PlayTime(now time.Time) time.Duration {
	if ns.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(ns.StartedAt)
}

// Clone returns a deep copy.
func (ns *NarrativeState) Clone() *NarrativeState {
	c := *ns
	c.Vars = maps.Clone(ns.Vars)
	c.Inventory = slices.Clone(ns.Inventory)
	c.Traits = slices.Clone(ns.Traits)
	return &c
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case string, bool, float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
