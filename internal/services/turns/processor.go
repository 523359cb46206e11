// Package turns plays turns against stored sessions. The HTTP handlers and
// the queue worker both go through a Processor so a turn behaves the same
// whichever way it arrives.
package turns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/logger"
	"github.com/jwebster45206/last-signal/internal/narrator"
	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/story"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is already playing a turn")
)

// NarratorFactory builds a fresh narrator for one turn. Conversation
// memory travels in the session snapshot, not in the narrator.
type NarratorFactory func() *narrator.Service

// Locker serializes turns on one session.
type Locker interface {
	Acquire(ctx context.Context, sessionID uuid.UUID, holder string) (bool, error)
	Release(ctx context.Context, sessionID uuid.UUID, holder string) error
}

// record is what gets stored under a session id.
type record struct {
	Owner    string          `json:"owner"`
	Snapshot json.RawMessage `json:"snapshot"`
}

type Processor struct {
	store       storage.Store
	graph       *story.Graph
	narrators   NarratorFactory
	broadcaster *events.Broadcaster
	locker      Locker
	logger      *slog.Logger
}

type Option func(*Processor)

// WithBroadcaster publishes fragments, mode changes and turn completions.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(p *Processor) {
		p.broadcaster = b
	}
}

// WithLocker makes Turn fail with ErrSessionBusy while another holder is
// playing the same session.
func WithLocker(l Locker) Option {
	return func(p *Processor) {
		p.locker = l
	}
}

func NewProcessor(store storage.Store, graph *story.Graph, narrators NarratorFactory, log *slog.Logger, opts ...Option) *Processor {
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{
		store:     store,
		graph:     graph,
		narrators: narrators,
		logger:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Broadcaster returns the configured broadcaster, or nil.
func (p *Processor) Broadcaster() *events.Broadcaster {
	return p.broadcaster
}

// Create starts a new session. An empty owner defaults to the session id.
func (p *Processor) Create(ctx context.Context, owner string) (uuid.UUID, string, *session.Output, error) {
	sessionID := uuid.New()
	if owner == "" {
		owner = sessionID.String()
	}

	log := logger.WithSessionID(p.logger, sessionID.String())
	sess := session.New(p.graph, p.narrators(), session.WithLogger(log), session.WithSaves(p.store, owner))
	if err := p.persist(ctx, sessionID, owner, sess); err != nil {
		return uuid.Nil, "", nil, err
	}
	services.RecordSessionCreated()
	log.Info("Session created", "owner", owner)
	return sessionID, owner, sess.Intro(), nil
}

// Open rebuilds a session from its stored snapshot. sink may be nil.
func (p *Processor) Open(ctx context.Context, sessionID uuid.UUID, sink session.Sink) (*session.Session, string, error) {
	data, err := p.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load session: %w", err)
	}
	if data == nil {
		return nil, "", ErrSessionNotFound
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, "", fmt.Errorf("corrupt session record: %w", err)
	}

	opts := []session.Option{
		session.WithLogger(logger.WithSessionID(p.logger, sessionID.String())),
		session.WithSaves(p.store, rec.Owner),
	}
	if sink != nil {
		opts = append(opts, session.WithSink(sink))
	}
	sess := session.New(p.graph, p.narrators(), opts...)
	if err := sess.UnmarshalSnapshot(rec.Snapshot); err != nil {
		return nil, "", fmt.Errorf("failed to restore session: %w", err)
	}
	return sess, rec.Owner, nil
}

// Exists reports whether a session is stored under sessionID.
func (p *Processor) Exists(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	data, err := p.store.LoadSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	return data != nil, nil
}

func (p *Processor) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return p.store.DeleteSession(ctx, sessionID)
}

// Turn plays one input against a stored session and stores the result.
// holder identifies the caller to the locker.
func (p *Processor) Turn(ctx context.Context, sessionID uuid.UUID, holder string, req chat.TurnRequest) (*session.Output, error) {
	log := logger.WithSessionID(p.logger, sessionID.String())

	if p.locker != nil {
		locked, err := p.locker.Acquire(ctx, sessionID, holder)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, ErrSessionBusy
		}
		defer func() {
			if err := p.locker.Release(context.WithoutCancel(ctx), sessionID, holder); err != nil {
				logger.WithError(log, err).Warn("Failed to release session lock")
			}
		}()
	}

	var sink session.Sink
	if p.broadcaster != nil {
		sink = events.NewSessionSink(ctx, p.broadcaster, sessionID)
	}
	sess, owner, err := p.Open(ctx, sessionID, sink)
	if err != nil {
		return nil, err
	}

	out, err := sess.Handle(ctx, session.Input{
		ChooseIndex:   req.ChooseIndex,
		FreeText:      req.Text,
		SystemCommand: req.Command,
	})
	if err != nil {
		return nil, err
	}

	if err := p.persist(ctx, sessionID, owner, sess); err != nil {
		return nil, fmt.Errorf("failed to store session after turn: %w", err)
	}

	if p.broadcaster != nil {
		_ = p.broadcaster.PublishTurnCompleted(ctx, sessionID, string(out.Mode), sess.State().Location(), len(out.Choices))
	}
	return out, nil
}

func (p *Processor) persist(ctx context.Context, sessionID uuid.UUID, owner string, sess *session.Session) error {
	snap, err := sess.MarshalSnapshot()
	if err != nil {
		return err
	}
	data, err := json.Marshal(record{Owner: owner, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := p.store.SaveSession(ctx, sessionID, data); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
