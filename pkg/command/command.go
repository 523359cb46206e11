// Package command turns raw player input into structured commands.
package command

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

type Kind string

const (
	KindEmpty    Kind = "empty"
	KindSystem   Kind = "system"
	KindStory    Kind = "story"
	KindDialogue Kind = "dialogue"
)

// System verbs.
const (
	SysBegin   = "begin"
	SysSave    = "save"
	SysLoad    = "load"
	SysHelp    = "help"
	SysQuit    = "quit"
	SysRestart = "restart"
)

// Story verbs.
const (
	VerbGo        = "go"
	VerbTake      = "take"
	VerbDrop      = "drop"
	VerbUse       = "use"
	VerbLook      = "look"
	VerbExamine   = "examine"
	VerbInventory = "inventory"
	VerbOpen      = "open"
	VerbClose     = "close"
	VerbRead      = "read"
	VerbTalk      = "talk"
	VerbListen    = "listen"
)

// Command is the parsed form of one line of player input.
type Command struct {
	Kind        Kind   `json:"kind"`
	Verb        string `json:"verb,omitempty"`
	Object      string `json:"object,omitempty"`
	Preposition string `json:"preposition,omitempty"`
	Indirect    string `json:"indirect,omitempty"`
	// Text is the normalised input, Raw the input as typed.
	Text string `json:"text,omitempty"`
	Raw  string `json:"raw"`
}

type alias struct {
	words     string
	verb      string
	takesArgs bool
}

// Checked in order; the first match wins.
var systemAliases = []alias{
	{"new game", SysBegin, false},
	{"wake up", SysBegin, false},
	{"begin", SysBegin, false},
	{"start", SysBegin, false},
	{"wake", SysBegin, false},
	{"play", SysBegin, false},
	{"save", SysSave, true},
	{"load", SysLoad, true},
	{"restore", SysLoad, true},
	{"help", SysHelp, false},
	{"h", SysHelp, false},
	{"?", SysHelp, false},
	{"quit", SysQuit, false},
	{"q", SysQuit, false},
	{"restart", SysRestart, false},
	{"reset", SysRestart, false},
}

var storyVerbs = []alias{
	{"pick up", VerbTake, true},
	{"look at", VerbExamine, true},
	{"talk to", VerbTalk, true},
	{"go", VerbGo, true},
	{"move", VerbGo, true},
	{"walk", VerbGo, true},
	{"run", VerbGo, true},
	{"head", VerbGo, true},
	{"travel", VerbGo, true},
	{"take", VerbTake, true},
	{"get", VerbTake, true},
	{"pick", VerbTake, true},
	{"grab", VerbTake, true},
	{"drop", VerbDrop, true},
	{"put", VerbDrop, true},
	{"place", VerbDrop, true},
	{"use", VerbUse, true},
	{"activate", VerbUse, true},
	{"operate", VerbUse, true},
	{"look", VerbLook, true},
	{"l", VerbLook, true},
	{"examine", VerbExamine, true},
	{"x", VerbExamine, true},
	{"inspect", VerbExamine, true},
	{"check", VerbExamine, true},
	{"inventory", VerbInventory, false},
	{"inv", VerbInventory, false},
	{"i", VerbInventory, false},
	{"open", VerbOpen, true},
	{"close", VerbClose, true},
	{"read", VerbRead, true},
	{"talk", VerbTalk, true},
	{"speak", VerbTalk, true},
	{"listen", VerbListen, true},
}

var prepositions = []string{"with", "on", "in", "at", "to", "from", "using", "into", "about"}

var articles = []string{"a", "an", "the"}

var directions = map[string]string{
	"n": "north", "north": "north",
	"s": "south", "south": "south",
	"e": "east", "east": "east",
	"w": "west", "west": "west",
	"u": "up", "up": "up",
	"d": "down", "down": "down",
}

var endConversation = []string{"leave", "exit", "bye", "goodbye", "end conversation", "end"}

// Normalize folds case and collapses whitespace.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(cases.Fold().String(raw)), " ")
}

// Parse classifies input as a system command, a story command or free
// dialogue. It never fails; empty input yields KindEmpty.
func Parse(raw string) Command {
	text := Normalize(raw)
	cmd := Command{Raw: strings.TrimSpace(raw), Text: text}
	if text == "" {
		cmd.Kind = KindEmpty
		return cmd
	}

	if a, rest, ok := match(systemAliases, text); ok && (rest == "" || a.takesArgs && isSlot(rest)) {
		cmd.Kind = KindSystem
		cmd.Verb = a.verb
		cmd.Object = rest
		return cmd
	}

	tokens := dropArticles(strings.Fields(text))
	if len(tokens) == 1 {
		if dir, ok := directions[tokens[0]]; ok {
			cmd.Kind = KindStory
			cmd.Verb = VerbGo
			cmd.Object = dir
			return cmd
		}
	}

	a, rest, ok := match(storyVerbs, strings.Join(tokens, " "))
	if !ok || (!a.takesArgs && rest != "") {
		cmd.Kind = KindDialogue
		return cmd
	}

	cmd.Kind = KindStory
	cmd.Verb = a.verb
	remaining := strings.Fields(rest)

	if a.verb == VerbGo && len(remaining) > 0 {
		if dir, ok := directions[remaining[0]]; ok {
			cmd.Object = dir
			return cmd
		}
	}

	if i := slices.IndexFunc(remaining, isPreposition); i >= 0 {
		cmd.Object = strings.Join(remaining[:i], " ")
		cmd.Preposition = remaining[i]
		cmd.Indirect = strings.Join(remaining[i+1:], " ")
	} else {
		cmd.Object = strings.Join(remaining, " ")
	}
	return cmd
}

// IsSystem reports whether the command is the given system verb.
func (c Command) IsSystem(verb string) bool {
	return c.Kind == KindSystem && c.Verb == verb
}

// Slot returns the numeric argument of a save or load command.
func (c Command) Slot() (int, bool) {
	n, err := strconv.Atoi(c.Object)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// isSlot reports whether a system command argument is a save slot number.
func isSlot(arg string) bool {
	n, err := strconv.Atoi(arg)
	return err == nil && n >= 1
}

// ChoiceNumber parses a 1-based choice number and returns it 0-based.
func ChoiceNumber(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// IsEndConversation reports whether the input asks to leave a conversation.
func IsEndConversation(raw string) bool {
	return slices.Contains(endConversation, Normalize(raw))
}

// match finds the first alias that equals text or is a whole-word prefix
// of it, returning the remainder.
func match(table []alias, text string) (alias, string, bool) {
	for _, a := range table {
		if text == a.words {
			return a, "", true
		}
		if rest, ok := strings.CutPrefix(text, a.words+" "); ok {
			return a, strings.TrimSpace(rest), true
		}
	}
	return alias{}, "", false
}

func dropArticles(tokens []string) []string {
	return slices.DeleteFunc(tokens, func(t string) bool {
		return slices.Contains(articles, t)
	})
}

func isPreposition(t string) bool {
	return slices.Contains(prepositions, t)
}
