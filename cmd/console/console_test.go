package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/narrator"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/story"
)

func newTestLocalGame(t *testing.T) *localGame {
	t.Helper()
	g, err := story.Default()
	require.NoError(t, err)
	pool, err := persona.Default()
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	saves := storage.NewMemoryStorage(0)
	sess := session.New(g, narrator.New(narrator.Scripted{}, pool, narrator.WithLogger(log)),
		session.WithLogger(log),
		session.WithSaves(saves, "console"))
	return newLocalGame(sess, saves, "console")
}

func TestLocalGame(t *testing.T) {
	ctx := context.Background()
	g := newTestLocalGame(t)

	out, err := g.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ModeIntro, out.Mode)

	out, err = g.Turn(ctx, session.Input{FreeText: "begin"})
	require.NoError(t, err)
	assert.Len(t, out.Choices, 3)

	// Typed numbers are 1-based.
	_, err = g.Turn(ctx, session.Input{FreeText: "1"})
	require.NoError(t, err)

	status, err := g.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cryo Bay", status.Location)
	assert.Equal(t, "console", status.Owner)

	_, err = g.Turn(ctx, session.Input{SystemCommand: "save"})
	require.NoError(t, err)
	saves, err := g.Saves(ctx)
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, 1, saves[0].Slot)
}

func TestConsoleUI_AppendOutput(t *testing.T) {
	m := NewConsoleUI(newTestLocalGame(t))
	m.appendOutput(&session.Output{
		Text: []string{"The cold hits you first. Then the silence."},
		Choices: []session.ChoiceView{
			{Label: "Look around the cryo bay", Index: 0},
			{Label: "Check your vital signs", Index: 1},
		},
		Mode: session.ModeAwaitingChoice,
	})

	require.Len(t, m.entries, 2)
	assert.Equal(t, entryStory, m.entries[0].kind)
	assert.Equal(t, "1. Look around the cryo bay\n2. Check your vital signs", m.entries[1].text)
	assert.Equal(t, session.ModeAwaitingChoice, m.mode)

	m.entries = append(m.entries, entry{kind: entryPlayer, text: "1"})
	assert.Empty(t, m.lastStory())

	m.appendOutput(&session.Output{Text: []string{"ARIA: Hello.", "Static."}, Mode: session.ModeConversing})
	assert.Equal(t, "ARIA: Hello.\nStatic.", m.lastStory())
}

func TestConsoleUI_Commands(t *testing.T) {
	m := NewConsoleUI(newTestLocalGame(t))
	m.status = &handlers.SessionSummary{Vars: map[string]any{"signal_strength": 3.0, "current_location": "Cryo Bay"}}

	model, _ := m.handleCommand("/vars")
	m = model.(ConsoleUI)
	last := m.entries[len(m.entries)-1]
	assert.Equal(t, "Variables:\n• current_location = Cryo Bay\n• signal_strength = 3", last.text)

	model, _ = m.handleCommand("/bogus")
	m = model.(ConsoleUI)
	assert.Equal(t, entryError, m.entries[len(m.entries)-1].kind)

	model, _ = m.handleCommand("/help")
	m = model.(ConsoleUI)
	assert.Contains(t, m.entries[len(m.entries)-1].text, "/copy")
}

func TestConsoleUI_Complete(t *testing.T) {
	m := NewConsoleUI(newTestLocalGame(t))

	m.textarea.SetValue("exa")
	m = m.complete()
	assert.Equal(t, "examine ", m.textarea.Value())

	before := len(m.entries)
	m.textarea.SetValue("in")
	m = m.complete()
	assert.Equal(t, "in", m.textarea.Value())
	require.Len(t, m.entries, before+1)
	assert.Equal(t, "Did you mean: inspect, inv, inventory", m.entries[before].text)

	m.textarea.SetValue("zz")
	m = m.complete()
	assert.Equal(t, "zz", m.textarea.Value())
	assert.Len(t, m.entries, before+1)
}

func TestSavesEntry(t *testing.T) {
	e := savesEntry(nil, errors.New("boom"))
	assert.Equal(t, entryError, e.kind)

	e = savesEntry(nil, nil)
	assert.Contains(t, e.text, "No saved games")

	e = savesEntry([]handlers.SaveSummary{{Slot: 2, Location: "Medical Bay", PlayTime: 90, Timestamp: time.Now()}}, nil)
	assert.True(t, strings.HasPrefix(e.text, "Save slots:\n• Slot 2: Medical Bay, played 1m30s"))
}

func TestFormatStoryLine(t *testing.T) {
	assert.Contains(t, formatStoryLine("ARIA: Welcome back.", 60), "Welcome back.")
	assert.Contains(t, formatStoryLine("The lights flicker.", 60), "The lights flicker.")
}
