package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/session"
)

// SessionSink forwards a session's fragments and mode changes to its
// channel. Publish errors are logged by the broadcaster and dropped.
type SessionSink struct {
	ctx         context.Context
	broadcaster *Broadcaster
	sessionID   uuid.UUID
}

var _ session.Sink = (*SessionSink)(nil)

func NewSessionSink(ctx context.Context, b *Broadcaster, sessionID uuid.UUID) *SessionSink {
	return &SessionSink{ctx: ctx, broadcaster: b, sessionID: sessionID}
}

func (s *SessionSink) Fragment(text string) {
	_ = s.broadcaster.PublishFragment(s.ctx, s.sessionID, text)
}

func (s *SessionSink) ModeChanged(from, to session.Mode) {
	_ = s.broadcaster.PublishModeChanged(s.ctx, s.sessionID, string(from), string(to))
}
