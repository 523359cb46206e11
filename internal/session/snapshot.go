package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/state"
	"github.com/jwebster45206/last-signal/pkg/story"
)

var ErrInvalidSnapshot = errors.New("invalid session snapshot")

// Snapshot is the serialisable form of a session.
type Snapshot struct {
	Cursor   story.Cursor                  `json:"cursor"`
	State    *state.NarrativeState         `json:"state"`
	Mode     Mode                          `json:"mode"`
	Memories map[string][]chat.ChatMessage `json:"memories,omitempty"`
	History  []string                      `json:"history,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Cursor:   s.walker.Cursor(),
		State:    s.state.Clone(),
		Mode:     s.mode,
		Memories: s.narrator.Snapshot(),
		History:  slices.Clone(s.history),
	}
}

// Restore replaces the whole session with snap. On error nothing changes.
func (s *Session) Restore(snap Snapshot) error {
	if snap.State == nil {
		return fmt.Errorf("%w: missing state", ErrInvalidSnapshot)
	}
	if !snap.Mode.valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSnapshot, snap.Mode)
	}
	if err := s.walker.Restore(snap.Cursor); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	// The walker writes through this pointer, so copy in place.
	*s.state = *snap.State.Clone()
	if s.state.Vars == nil {
		s.state.Vars = map[string]any{}
	}
	s.narrator.Restore(snap.Memories)
	s.history = slices.Clone(snap.History)
	if over := len(s.history) - s.historyWindow; over > 0 {
		s.history = s.history[over:]
	}
	// Restoring is not a transition, so the sink is not told.
	s.mode = snap.Mode
	return nil
}

// MarshalSnapshot serialises the session.
func (s *Session) MarshalSnapshot() (json.RawMessage, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot restores the session from serialised data.
func (s *Session) UnmarshalSnapshot(data json.RawMessage) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return s.Restore(snap)
}

func (s *Session) save(ctx context.Context, slot int) string {
	if s.saves == nil {
		return "Saving is not available."
	}
	if s.mode == ModeIntro {
		return "There is nothing to save yet."
	}

	data, err := s.MarshalSnapshot()
	if err != nil {
		s.logger.Error("Failed to save game", "error", err)
		return "Could not save game."
	}

	now := s.now().UTC()
	err = s.saves.SaveSlot(ctx, &storage.SaveData{
		Version:   storage.SaveVersion,
		Slot:      slot,
		Owner:     s.owner,
		Snapshot:  data,
		Timestamp: now,
		PlayTime:  int64(s.state.PlayTime(now).Seconds()),
		Location:  s.state.Location(),
	})
	if err != nil {
		s.logger.Error("Failed to save game", "slot", slot, "error", err)
		return "Could not save game."
	}
	s.logger.Info("Game saved", "owner", s.owner, "slot", slot)
	return "Game saved."
}

func (s *Session) load(ctx context.Context, slot int) *Output {
	if s.saves == nil {
		return s.output("Loading is not available.")
	}

	d, err := s.saves.LoadSlot(ctx, s.owner, slot)
	switch {
	case errors.Is(err, storage.ErrIncompatibleSave):
		s.logger.Warn("Incompatible save", "slot", slot, "error", err)
		return s.output("That save was made by an incompatible version and cannot be loaded.")
	case err != nil:
		s.logger.Error("Failed to load game", "slot", slot, "error", err)
		return s.output("Could not load game.")
	case d == nil:
		return s.output("No save game found.")
	}

	if err := s.UnmarshalSnapshot(d.Snapshot); err != nil {
		s.logger.Error("Failed to restore save", "slot", slot, "error", err)
		return s.output("Could not load game.")
	}
	s.logger.Info("Game loaded", "owner", s.owner, "slot", slot)
	return s.output("Game loaded.", fmt.Sprintf("Location: %s", s.state.Location()))
}
