package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/command"
)

// HelpText lists the commands available to the player.
var HelpText = []string{
	"Available commands:",
	"- begin/start/wake up: Start a new game",
	"- 1, 2, 3...: Choose an option by number, or type its text",
	"- save [slot]: Save your current progress",
	"- load [slot]: Load a saved game",
	"- restart: Start a new game",
	"- quit: Leave the game",
	"- help: Show this help message",
	"",
	"Game commands:",
	"- look: Examine your surroundings",
	"- go [direction]: Move in a direction (or n/s/e/w)",
	"- take [item]: Pick up an item",
	"- examine [item]: Look closely at something",
	"- inventory: Check what you're carrying",
	"",
	"When a station AI is listening, type freely to talk to it. Say 'bye' to end the conversation.",
}

const unknownCommand = "Unknown command. Type 'help' for available commands."

// systemInput handles input that arrived through the command channel.
func (s *Session) systemInput(ctx context.Context, raw string) *Output {
	cmd := command.Parse(raw)
	if cmd.Kind != command.KindSystem {
		return s.output(unknownCommand)
	}
	return s.system(ctx, cmd)
}

// freeText routes typed input by kind and session mode.
func (s *Session) freeText(ctx context.Context, raw string) *Output {
	cmd := command.Parse(raw)
	switch cmd.Kind {
	case command.KindEmpty:
		return s.output()
	case command.KindSystem:
		return s.system(ctx, cmd)
	}

	switch s.mode {
	case ModeIntro:
		return s.output("Type 'begin' to start your journey...")
	case ModeEnded:
		return s.output(EndLine, "Type 'restart' to play again, or 'load' to restore a save.")
	}

	if s.mode == ModeConversing && command.IsEndConversation(raw) {
		return s.endConversation(ctx)
	}

	if out, ok := s.choiceByText(ctx, raw); ok {
		return out
	}

	if s.mode == ModeConversing {
		return s.converse(ctx, cmd.Raw)
	}
	return s.storyCommand(ctx, cmd)
}

// choiceByText selects a choice from a 1-based number or its exact label.
func (s *Session) choiceByText(ctx context.Context, raw string) (*Output, bool) {
	choices := s.walker.CurrentChoices()
	if len(choices) == 0 {
		return nil, false
	}

	i, ok := command.ChoiceNumber(raw)
	if ok && i >= len(choices) {
		return s.output(fmt.Sprintf("Choose a number between 1 and %d.", len(choices))), true
	}
	if !ok {
		want := command.Normalize(strings.Trim(raw, `"`))
		for _, c := range choices {
			if command.Normalize(strings.Trim(c.Label, `"`)) == want {
				i, ok = c.Index, true
				break
			}
		}
	}
	if !ok {
		return nil, false
	}

	out, err := s.Choose(ctx, i)
	if err != nil {
		s.logger.Warn("Choice from text failed", "input", raw, "error", err)
		return s.output(err.Error()), true
	}
	return out, true
}

func (s *Session) converse(ctx context.Context, utterance string) *Output {
	persona := s.state.ActivePersona()
	s.state.SetLastPlayerInput(utterance)
	s.record("> " + utterance)

	reply := chat.WithSpeaker(persona, s.narrator.Converse(ctx, persona, utterance))
	s.record(reply)
	s.emit(reply)
	return s.output(reply)
}

// endConversation clears the active persona and its memory, then resumes
// the story from where the conversation began.
func (s *Session) endConversation(ctx context.Context) *Output {
	persona := s.state.ActivePersona()
	s.state.SetActivePersona("")
	s.narrator.EndConversation(persona)
	s.logger.Info("Conversation ended", "persona", persona)

	line := fmt.Sprintf("You end the conversation with %s.", persona)
	s.record(line)
	s.setMode(ModeNarrating)
	return s.output(append([]string{line}, s.narrate(ctx)...)...)
}

// storyCommand answers look and inventory locally and sends every other
// action to the narrator.
func (s *Session) storyCommand(ctx context.Context, cmd command.Command) *Output {
	prompt := cmd.Raw

	switch cmd.Verb {
	case command.VerbLook:
		if cmd.Object == "" {
			return s.output(fmt.Sprintf("Location: %s", s.state.Location()))
		}
	case command.VerbInventory:
		if len(s.state.Inventory) == 0 {
			return s.output("You aren't carrying anything.")
		}
		return s.output("You are carrying: " + strings.Join(s.state.Inventory, ", "))
	case command.VerbTake:
		if item, ok := command.MatchItem(cmd.Object, s.state.Inventory); ok {
			return s.output(fmt.Sprintf("You already have the %s.", item))
		}
	case command.VerbExamine, command.VerbUse, command.VerbRead:
		if item, ok := command.MatchItem(cmd.Object, s.state.Inventory); ok {
			prompt = fmt.Sprintf("The player tries to %s the %s they are carrying.", cmd.Verb, item)
		}
	}

	s.state.SetLastPlayerInput(cmd.Raw)
	s.record("> " + cmd.Raw)
	text := s.narrator.GenerateNarration(ctx, s.promptState(), prompt)
	s.record(text)
	s.emit(text)
	return s.output(text)
}

func (s *Session) system(ctx context.Context, cmd command.Command) *Output {
	switch cmd.Verb {
	case command.SysBegin:
		return s.Begin(ctx)
	case command.SysHelp:
		return s.output(HelpText...)
	case command.SysQuit:
		out := s.output("The signal fades. Goodbye.")
		out.Quit = true
		return out
	case command.SysRestart:
		s.restart()
		return s.Begin(ctx)
	case command.SysSave:
		slot, ok := cmd.Slot()
		if !ok {
			slot = DefaultSlot
		}
		return s.output(s.save(ctx, slot))
	case command.SysLoad:
		slot, ok := cmd.Slot()
		if !ok {
			slot = DefaultSlot
		}
		return s.load(ctx, slot)
	}
	return s.output(unknownCommand)
}
