package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/last-signal/internal/session"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeConnected     EventType = "connected"
	EventTypeFragment      EventType = "fragment"
	EventTypeModeChanged   EventType = "mode.changed"
	EventTypeTurnCompleted EventType = "turn.completed"

	EventTypeRequestProcessing EventType = "request.processing"
	EventTypeRequestCompleted  EventType = "request.completed"
	EventTypeRequestFailed     EventType = "request.failed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel is the Pub/Sub channel carrying a session's events.
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-events:%s", sessionID.String())
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishFragment publishes one resolved line of narration.
func (b *Broadcaster) PublishFragment(ctx context.Context, sessionID uuid.UUID, text string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeFragment,
		Data: map[string]any{"text": text},
	})
}

// PublishModeChanged publishes a session mode transition.
func (b *Broadcaster) PublishModeChanged(ctx context.Context, sessionID uuid.UUID, from, to string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeModeChanged,
		Data: map[string]any{"from": from, "to": to},
	})
}

// PublishTurnCompleted publishes the end of a turn with its resulting mode
// and location.
func (b *Broadcaster) PublishTurnCompleted(ctx context.Context, sessionID uuid.UUID, mode, location string, choices int) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeTurnCompleted,
		Data: map[string]any{
			"mode":     mode,
			"location": location,
			"choices":  choices,
		},
	})
}

// PublishRequestProcessing announces that a worker picked up a queued turn.
func (b *Broadcaster) PublishRequestProcessing(ctx context.Context, sessionID uuid.UUID, requestID string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeRequestProcessing,
		Data: map[string]any{"request_id": requestID},
	})
}

// PublishRequestCompleted delivers the output of a queued turn.
func (b *Broadcaster) PublishRequestCompleted(ctx context.Context, sessionID uuid.UUID, requestID string, out *session.Output, durationMs int64) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeRequestCompleted,
		Data: map[string]any{
			"request_id":  requestID,
			"output":      out,
			"duration_ms": durationMs,
		},
	})
}

// PublishRequestFailed reports a queued turn that could not be played.
func (b *Broadcaster) PublishRequestFailed(ctx context.Context, sessionID uuid.UUID, requestID, message string) error {
	return b.publish(ctx, sessionID, Event{
		Type: EventTypeRequestFailed,
		Data: map[string]any{
			"request_id": requestID,
			"error":      message,
		},
	})
}

// Subscribe opens a subscription to a session's channel.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionID))
}

func (b *Broadcaster) publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	event.SessionID = sessionID.String()
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)

	return nil
}
