package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-process Store used by the console and in tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	saves     map[string]map[int]SaveData
	sessions  map[uuid.UUID]json.RawMessage
	maxSlots  int
	pingError error
}

var _ Store = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty store with the given slot cap.
func NewMemoryStorage(maxSlots int) *MemoryStorage {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	return &MemoryStorage{
		saves:    make(map[string]map[int]SaveData),
		sessions: make(map[uuid.UUID]json.RawMessage),
		maxSlots: maxSlots,
	}
}

// SetPingError configures Ping to fail with err, or succeed when nil.
func (m *MemoryStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) SaveSlot(ctx context.Context, d *SaveData) error {
	if d.Owner == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidSave)
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if err := d.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.saves[d.Owner]
	if !ok {
		slots = make(map[int]SaveData)
		m.saves[d.Owner] = slots
	}
	cp := *d
	cp.Snapshot = slices.Clone(d.Snapshot)
	slots[d.Slot] = cp

	for len(slots) > m.maxSlots {
		oldest := -1
		for n, s := range slots {
			if oldest < 0 || s.Timestamp.Before(slots[oldest].Timestamp) {
				oldest = n
			}
		}
		delete(slots, oldest)
	}
	return nil
}

func (m *MemoryStorage) LoadSlot(ctx context.Context, owner string, slot int) (*SaveData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.saves[owner][slot]
	if !ok {
		return nil, nil
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.Snapshot = slices.Clone(d.Snapshot)
	return &d, nil
}

func (m *MemoryStorage) ListSlots(ctx context.Context, owner string) ([]*SaveData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SaveData, 0, len(m.saves[owner]))
	for _, d := range m.saves[owner] {
		d.Snapshot = slices.Clone(d.Snapshot)
		out = append(out, &d)
	}
	slices.SortFunc(out, func(a, b *SaveData) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out, nil
}

func (m *MemoryStorage) DeleteSlot(ctx context.Context, owner string, slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saves[owner], slot)
	return nil
}

func (m *MemoryStorage) SaveSession(ctx context.Context, id uuid.UUID, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = slices.Clone(data)
	return nil
}

func (m *MemoryStorage) LoadSession(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return slices.Clone(data), nil
}

func (m *MemoryStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
