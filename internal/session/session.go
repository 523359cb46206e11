// Package session runs one play-through: it walks the story graph,
// resolves AI markers through the narrator and routes player input.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/last-signal/internal/narrator"
	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/pkg/prompts"
	"github.com/jwebster45206/last-signal/pkg/state"
	"github.com/jwebster45206/last-signal/pkg/story"
)

// Mode is where a session is in its request/response cycle.
type Mode string

const (
	ModeIntro          Mode = "intro"
	ModeNarrating      Mode = "narrating"
	ModeAwaitingChoice Mode = "awaiting_choice"
	ModeConversing     Mode = "conversing"
	ModeEnded          Mode = "ended"
)

func (m Mode) valid() bool {
	switch m {
	case ModeIntro, ModeNarrating, ModeAwaitingChoice, ModeConversing, ModeEnded:
		return true
	}
	return false
}

// DefaultHistoryWindow is how many recent lines are sent as context.
const DefaultHistoryWindow = 10

// DefaultSlot is used by save and load without a slot number.
const DefaultSlot = 1

var _ story.Variables = (*state.NarrativeState)(nil)

// Input is one player action. Exactly one field is expected to be set;
// ChooseIndex wins over SystemCommand, which wins over FreeText.
type Input struct {
	ChooseIndex   *int   `json:"choose_index,omitempty"`
	FreeText      string `json:"text,omitempty"`
	SystemCommand string `json:"command,omitempty"`
}

// ChoiceView is a choice as the player sees it.
type ChoiceView struct {
	Label string `json:"label"`
	Index int    `json:"index"`
}

// Output is everything the presentation layer shows after one cycle.
type Output struct {
	Text    []string     `json:"text"`
	Choices []ChoiceView `json:"choices"`
	Mode    Mode         `json:"mode"`
	Quit    bool         `json:"quit,omitempty"`
}

// Sink observes a session as it runs.
type Sink interface {
	Fragment(text string)
	ModeChanged(from, to Mode)
}

// Session plays one story for one player. It is not safe for concurrent
// use; callers serialise turns.
type Session struct {
	graph    *story.Graph
	walker   *story.Walker
	state    *state.NarrativeState
	narrator *narrator.Service

	saves  storage.SaveStore
	owner  string
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	historyWindow int
	history       []string
	mode          Mode
}

// Option configures a Session.
type Option func(*Session)

// WithSaves enables save and load into the owner's slots.
func WithSaves(store storage.SaveStore, owner string) Option {
	return func(s *Session) {
		s.saves = store
		s.owner = owner
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

func WithHistoryWindow(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyWindow = n
		}
	}
}

// New creates a session in intro mode at the start of the graph.
func New(g *story.Graph, n *narrator.Service, opts ...Option) *Session {
	ns := state.New(g.InitialVariables())
	s := &Session{
		graph:         g,
		state:         ns,
		walker:        story.NewWalker(g, ns),
		narrator:      n,
		logger:        slog.Default(),
		now:           time.Now,
		historyWindow: DefaultHistoryWindow,
		mode:          ModeIntro,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Mode() Mode {
	return s.mode
}

// State returns a copy of the narrative state.
func (s *Session) State() *state.NarrativeState {
	return s.state.Clone()
}

// Narrator returns the session's narrator.
func (s *Session) Narrator() *narrator.Service {
	return s.narrator
}

// Intro returns the banner shown before the game begins.
func (s *Session) Intro() *Output {
	title := s.graph.Title
	if title == "" {
		title = "The Last Signal"
	}
	return s.output(
		fmt.Sprintf("=== %s ===", upper(title)),
		"A sci-fi text adventure",
		"Type 'begin' to start your journey, or 'help' for available commands.",
	)
}

// View returns the current mode and choices without advancing anything.
func (s *Session) View() *Output {
	return s.output()
}

// Handle runs one request/response cycle. Only an out of range choice is
// returned as an error; every other failure is reported in the output.
func (s *Session) Handle(ctx context.Context, in Input) (*Output, error) {
	var (
		out *Output
		err error
	)
	switch {
	case in.ChooseIndex != nil:
		out, err = s.Choose(ctx, *in.ChooseIndex)
	case in.SystemCommand != "":
		out = s.systemInput(ctx, in.SystemCommand)
	default:
		out = s.freeText(ctx, in.FreeText)
	}
	if err != nil {
		return nil, err
	}
	services.RecordTurn(string(out.Mode))
	return out, nil
}

// Begin wakes the player and narrates the opening scene.
func (s *Session) Begin(ctx context.Context) *Output {
	if s.mode != ModeIntro {
		return s.output("You are already awake. Type 'restart' to begin again.")
	}
	s.state.StartedAt = s.now().UTC()
	s.setMode(ModeNarrating)
	return s.output(s.narrate(ctx)...)
}

// Choose analyses the choice, merges the analysis into the narrative
// state, follows the choice and narrates the result. An index outside the
// current choices fails with story.ErrInvalidChoice and changes nothing.
func (s *Session) Choose(ctx context.Context, i int) (*Output, error) {
	choices := s.walker.CurrentChoices()
	if i < 0 || i >= len(choices) {
		return nil, fmt.Errorf("%w: index %d, %d choices available", story.ErrInvalidChoice, i, len(choices))
	}
	c := choices[i]

	analysis := s.narrator.AnalyzeChoice(ctx, c.Label, s.promptState())
	state.NewAnalysisWorker(s.state, analysis, s.logger).Apply()

	if err := s.walker.ChooseChoice(i); err != nil {
		return nil, err
	}
	s.record("> " + c.Label)
	s.logger.Debug("Choice taken", "choice", c.Label, "target", c.Target, "impact", analysis.Impact)

	s.setMode(ModeNarrating)
	return s.output(s.narrate(ctx)...), nil
}

// restart discards all progress and returns to the intro.
func (s *Session) restart() {
	s.state.Reset(s.graph.InitialVariables())
	s.walker.Reset()
	s.narrator.Reset()
	s.history = nil
	s.setMode(ModeIntro)
}

func (s *Session) setMode(m Mode) {
	if m == s.mode {
		return
	}
	from := s.mode
	s.mode = m
	s.logger.Debug("Session mode changed", "from", from, "to", m)
	if s.sink != nil {
		s.sink.ModeChanged(from, m)
	}
}

func (s *Session) emit(text string) {
	if s.sink != nil {
		s.sink.Fragment(text)
	}
}

// record appends to the recent history window.
func (s *Session) record(line string) {
	s.history = append(s.history, line)
	if over := len(s.history) - s.historyWindow; over > 0 {
		s.history = s.history[over:]
	}
}

func (s *Session) promptState() *prompts.PromptState {
	return prompts.ToPromptState(s.state, s.history)
}

// output builds the response for the current mode. Choices are listed
// whenever the cursor is parked at a choice point.
func (s *Session) output(text ...string) *Output {
	out := &Output{
		Text:    text,
		Choices: []ChoiceView{},
		Mode:    s.mode,
	}
	if out.Text == nil {
		out.Text = []string{}
	}
	if s.mode == ModeAwaitingChoice || s.mode == ModeConversing {
		for _, c := range s.walker.CurrentChoices() {
			out.Choices = append(out.Choices, ChoiceView{Label: c.Label, Index: c.Index})
		}
	}
	return out
}
