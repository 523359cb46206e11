package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func slotKey(owner string, slot int) string {
	return fmt.Sprintf("save:%s:%d", owner, slot)
}

func indexKey(owner string) string {
	return "saves:" + owner
}

func (r *RedisStorage) SaveSlot(ctx context.Context, d *SaveData) error {
	if d.Owner == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidSave)
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(d)
	if err != nil {
		r.logger.Error("Failed to marshal save", "owner", d.Owner, "slot", d.Slot, "error", err)
		return fmt.Errorf("failed to marshal save: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, slotKey(d.Owner, d.Slot), data, 0)
		p.ZAdd(ctx, indexKey(d.Owner), redis.Z{
			Score:  float64(d.Timestamp.UnixNano()),
			Member: strconv.Itoa(d.Slot),
		})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save slot", "owner", d.Owner, "slot", d.Slot, "error", err)
		return fmt.Errorf("failed to save slot: %w", err)
	}

	return r.evict(ctx, d.Owner)
}

// evict removes the oldest slots beyond the cap.
func (r *RedisStorage) evict(ctx context.Context, owner string) error {
	n, err := r.client.ZCard(ctx, indexKey(owner)).Result()
	if err != nil {
		return fmt.Errorf("failed to count slots: %w", err)
	}
	excess := n - int64(r.maxSlots)
	if excess <= 0 {
		return nil
	}

	oldest, err := r.client.ZRange(ctx, indexKey(owner), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("failed to list oldest slots: %w", err)
	}
	for _, member := range oldest {
		slot, err := strconv.Atoi(member)
		if err != nil {
			r.client.ZRem(ctx, indexKey(owner), member)
			continue
		}
		if err := r.DeleteSlot(ctx, owner, slot); err != nil {
			return err
		}
		r.logger.Info("Evicted oldest save slot", "owner", owner, "slot", slot)
	}
	return nil
}

func (r *RedisStorage) LoadSlot(ctx context.Context, owner string, slot int) (*SaveData, error) {
	data, err := r.client.Get(ctx, slotKey(owner, slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load slot", "owner", owner, "slot", slot, "error", err)
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}

	var d SaveData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSave, err)
	}
	if err := d.Validate(); err != nil {
		r.logger.Warn("Rejected save", "owner", owner, "slot", slot, "error", err)
		return nil, err
	}
	return &d, nil
}

func (r *RedisStorage) ListSlots(ctx context.Context, owner string) ([]*SaveData, error) {
	members, err := r.client.ZRevRange(ctx, indexKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	out := make([]*SaveData, 0, len(members))
	for _, member := range members {
		slot, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		d, err := r.LoadSlot(ctx, owner, slot)
		if err != nil {
			r.logger.Warn("Skipping unreadable save", "owner", owner, "slot", slot, "error", err)
			continue
		}
		if d == nil {
			// Index entry without a body.
			r.client.ZRem(ctx, indexKey(owner), member)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisStorage) DeleteSlot(ctx context.Context, owner string, slot int) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, slotKey(owner, slot))
		p.ZRem(ctx, indexKey(owner), strconv.Itoa(slot))
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete slot", "owner", owner, "slot", slot, "error", err)
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return nil
}
