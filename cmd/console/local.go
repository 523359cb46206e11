package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/internal/storage"
)

// game is what the UI plays: a session in this process or one hosted by
// the API.
type game interface {
	Start(ctx context.Context) (*session.Output, error)
	Turn(ctx context.Context, in session.Input) (*session.Output, error)
	Status(ctx context.Context) (*handlers.SessionSummary, error)
	Saves(ctx context.Context) ([]handlers.SaveSummary, error)
	Close() error
}

// localGame runs a session in-process. Saves live as long as the process.
type localGame struct {
	id      uuid.UUID
	owner   string
	session *session.Session
	saves   storage.SaveStore
}

var _ game = (*localGame)(nil)

func newLocalGame(sess *session.Session, saves storage.SaveStore, owner string) *localGame {
	return &localGame{id: uuid.New(), owner: owner, session: sess, saves: saves}
}

func (g *localGame) Start(ctx context.Context) (*session.Output, error) {
	return g.session.Intro(), nil
}

func (g *localGame) Turn(ctx context.Context, in session.Input) (*session.Output, error) {
	return g.session.Handle(ctx, in)
}

func (g *localGame) Status(ctx context.Context) (*handlers.SessionSummary, error) {
	summary := handlers.Summarize(g.id, g.owner, g.session)
	return &summary, nil
}

func (g *localGame) Saves(ctx context.Context) ([]handlers.SaveSummary, error) {
	saves, err := g.saves.ListSlots(ctx, g.owner)
	if err != nil {
		return nil, err
	}
	summaries := make([]handlers.SaveSummary, 0, len(saves))
	for _, d := range saves {
		summaries = append(summaries, handlers.SummarizeSave(d))
	}
	return summaries, nil
}

func (g *localGame) Close() error {
	return nil
}
