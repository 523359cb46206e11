// Package storage persists save slots and live session snapshots.
package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SaveVersion is written into every save. Saves with a different major
// version are rejected rather than migrated.
const SaveVersion = "1.0.0"

// DefaultMaxSlots is the number of save slots kept per owner.
const DefaultMaxSlots = 3

var (
	ErrIncompatibleSave = errors.New("incompatible save version")
	ErrInvalidSave      = errors.New("invalid save data")
)

// SaveData is one saved game. Snapshot is opaque to storage.
type SaveData struct {
	Version   string          `json:"version"`
	Slot      int             `json:"slot"`
	Owner     string          `json:"owner"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Timestamp time.Time       `json:"timestamp"`
	PlayTime  int64           `json:"play_time"` // seconds
	Location  string          `json:"location"`
}

// Validate checks the fields every save must carry and the version.
func (d *SaveData) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidSave)
	}
	if major(d.Version) != major(SaveVersion) {
		return fmt.Errorf("%w: %s (expected %s)", ErrIncompatibleSave, d.Version, SaveVersion)
	}
	if d.Slot < 1 {
		return fmt.Errorf("%w: slot %d", ErrInvalidSave, d.Slot)
	}
	if len(d.Snapshot) == 0 || !json.Valid(d.Snapshot) {
		return fmt.Errorf("%w: missing or malformed snapshot", ErrInvalidSave)
	}
	return nil
}

func major(version string) string {
	m, _, _ := strings.Cut(version, ".")
	return m
}

// SaveStore holds bounded save slots per owner.
type SaveStore interface {
	// SaveSlot writes d, evicting the oldest slots beyond the cap.
	SaveSlot(ctx context.Context, d *SaveData) error
	// LoadSlot returns nil, nil when the slot is empty.
	LoadSlot(ctx context.Context, owner string, slot int) (*SaveData, error)
	// ListSlots returns the owner's saves, newest first.
	ListSlots(ctx context.Context, owner string) ([]*SaveData, error)
	DeleteSlot(ctx context.Context, owner string, slot int) error
}

// SessionStore keeps serialized live sessions for the API.
type SessionStore interface {
	SaveSession(ctx context.Context, id uuid.UUID, data json.RawMessage) error
	// LoadSession returns nil, nil when the session does not exist.
	LoadSession(ctx context.Context, id uuid.UUID) (json.RawMessage, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// Store is everything the API needs from storage.
type Store interface {
	SaveStore
	SessionStore
	Ping(ctx context.Context) error
	Close() error
}

// Export encodes a save as base64 JSON for copying between machines.
func Export(d *SaveData) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal save: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Import decodes and validates an exported save.
func Import(encoded string) (*SaveData, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	var d SaveData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
