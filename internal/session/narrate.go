package session

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/story"
)

// EndLine closes a finished story.
const EndLine = "[ THE END ]"

// narrate consumes fragments until the walker parks, resolving markers as
// they come, then settles into the next mode. Narration stops early when a
// fragment opens a conversation; the cursor stays where it stopped.
func (s *Session) narrate(ctx context.Context) []string {
	wasConversing := s.state.ActivePersona() != ""

	var text []string
	for f := range s.walker.Continue() {
		if line := s.resolve(ctx, f); line != "" {
			text = append(text, line)
			s.record(line)
			s.emit(line)
		}
		if !wasConversing && s.state.ActivePersona() != "" {
			break
		}
	}
	if err := s.walker.Err(); err != nil {
		s.logger.Error("Story walk stopped", "error", err, "node", s.walker.Cursor().Node)
	}

	switch {
	case s.walker.Ended():
		text = append(text, EndLine)
		s.emit(EndLine)
		s.setMode(ModeEnded)
	case s.state.ActivePersona() != "":
		if !wasConversing {
			s.logger.Info("Conversation started", "persona", s.state.ActivePersona())
		}
		s.setMode(ModeConversing)
	default:
		s.setMode(ModeAwaitingChoice)
	}
	return text
}

// resolve splices marker output into a fragment, left to right, once per
// marker.
func (s *Session) resolve(ctx context.Context, f story.Fragment) string {
	var b strings.Builder
	for _, seg := range f.Segments {
		switch seg := seg.(type) {
		case story.Text:
			b.WriteString(seg.Content)
		case story.AIReply:
			b.WriteString(s.resolveReply(ctx))
		case story.AIGenerate:
			b.WriteString(s.narrator.GenerateNarration(ctx, s.promptState(), seg.Prompt))
		default:
			s.logger.Warn("Unknown fragment segment", "type", seg)
		}
	}
	return strings.TrimSpace(b.String())
}

// resolveReply answers the last player input as the active persona, or as
// the narrator when nobody is on the line.
func (s *Session) resolveReply(ctx context.Context) string {
	persona := s.state.ActivePersona()
	input := s.state.LastPlayerInput()
	switch {
	case persona != "":
		return chat.WithSpeaker(persona, s.narrator.Converse(ctx, persona, input))
	case input != "":
		return s.narrator.GenerateNarration(ctx, s.promptState(), input)
	default:
		return ""
	}
}

func upper(s string) string {
	return cases.Upper(language.English).String(s)
}
