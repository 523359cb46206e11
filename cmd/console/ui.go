package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/pkg/command"
)

const (
	PlaceHolderText = "Type a command, a choice number, or speak..."
	turnTimeout     = 90 * time.Second
)

type entryKind int

const (
	entryStory entryKind = iota
	entryPlayer
	entryChoice
	entryInfo
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	game         game
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	loading      bool

	entries []entry
	status  *handlers.SessionSummary
	mode    session.Mode

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type outputMsg struct {
	output *session.Output
	err    error
}

type statusMsg struct {
	status *handlers.SessionSummary
	err    error
}

type savesMsg struct {
	saves []handlers.SaveSummary
	err   error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(g game) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 500
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		game:         g,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		mode:         session.ModeIntro,
		loading:      true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.start(), textarea.Blink, progressTick())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.72) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(writeStatus(m.status, m.mode))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyTab:
			return m.complete(), nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.entries = append(m.entries, entry{kind: entryPlayer, text: input})
			m.loading = true
			m.progressTick = 0
			m.writeChatContent()

			return m, tea.Batch(m.turn(session.Input{FreeText: input}), progressTick())
		}

	case outputMsg:
		m.loading = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{kind: entryError, text: "Error: " + msg.err.Error()})
			m.writeChatContent()
			return m, nil
		}
		m.appendOutput(msg.output)
		m.writeChatContent()
		if msg.output.Quit {
			return m, tea.Quit
		}
		return m, m.refreshStatus()

	case statusMsg:
		if msg.err == nil && msg.status != nil {
			m.status = msg.status
			m.mode = msg.status.Mode
			m.metaViewport.SetContent(writeStatus(m.status, m.mode))
		}

	case savesMsg:
		m.entries = append(m.entries, savesEntry(msg.saves, msg.err))
		m.writeChatContent()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// appendOutput adds the text of one cycle and, when choices are open,
// the numbered list.
func (m *ConsoleUI) appendOutput(out *session.Output) {
	for _, line := range out.Text {
		m.entries = append(m.entries, entry{kind: entryStory, text: line})
	}
	if len(out.Choices) > 0 && out.Mode != session.ModeIntro {
		var b strings.Builder
		for i, c := range out.Choices {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%d. %s", c.Index+1, c.Label)
		}
		m.entries = append(m.entries, entry{kind: entryChoice, text: b.String()})
	}
	m.mode = out.Mode
}

// writeChatContent rebuilds the chat content for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("THE LAST SIGNAL") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, e := range m.entries {
		switch e.kind {
		case entryStory:
			content.WriteString(formatStoryLine(e.text, chatWidth) + "\n\n")
		case entryPlayer:
			content.WriteString(userStyle.Render("> ") + wordwrap.String(e.text, chatWidth-2) + "\n\n")
		case entryChoice:
			content.WriteString(choiceStyle.Render(wordwrap.String(e.text, chatWidth)) + "\n\n")
		case entryInfo:
			content.WriteString(wordwrap.String(e.text, chatWidth) + "\n\n")
		case entryError:
			content.WriteString(errorStyle.Render(wordwrap.String(e.text, chatWidth)) + "\n\n")
		}
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// formatStoryLine wraps a line and highlights a leading "NAME:" speaker.
func formatStoryLine(line string, width int) string {
	wrapped := wordwrap.String(line, width)
	if idx := strings.Index(wrapped, ":"); idx > 0 && idx <= 20 {
		speaker := wrapped[:idx]
		if len(strings.Fields(speaker)) <= 2 && strings.ToUpper(speaker) == speaker {
			return speakerStyle.Render(speaker+":") + narratorStyle.Render(wrapped[idx+1:])
		}
	}
	return narratorStyle.Render(wrapped)
}

func writeStatus(s *handlers.SessionSummary, mode session.Mode) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("STATUS") + "\n\n")

	content.WriteString("Mode:\n")
	content.WriteString(strings.ReplaceAll(string(mode), "_", " ") + "\n\n")

	if s != nil {
		content.WriteString("Location:\n")
		if s.Location != "" {
			content.WriteString(s.Location + "\n\n")
		} else {
			content.WriteString("Unknown\n\n")
		}

		content.WriteString(fmt.Sprintf("Tension: %d/10\n", s.Tension))
		content.WriteString(fmt.Sprintf("Mood: %s\n\n", s.Mood))

		content.WriteString("Inventory:\n")
		if len(s.Inventory) == 0 {
			content.WriteString("Empty\n")
		}
		for _, item := range s.Inventory {
			content.WriteString("• " + item + "\n")
		}
		content.WriteString("\n")

		if len(s.Traits) > 0 {
			content.WriteString("Traits:\n")
			for _, trait := range s.Traits {
				content.WriteString("• " + trait + "\n")
			}
			content.WriteString("\n")
		}
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /vars: Variables\n")
	content.WriteString("• /copy: Copy last reply\n")
	content.WriteString("• /saves: Save slots\n")

	return content.String()
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		m.entries = append(m.entries, entry{kind: entryInfo, text: strings.Join(session.HelpText, "\n") + `

Console:
• /vars - Show story variables
• /copy - Copy the last story text to the clipboard
• /saves - List save slots
• Type a number to pick a choice
• Ctrl+C - Quit game`})

	case "/vars":
		var varsText strings.Builder
		varsText.WriteString("Variables:\n")
		if m.status == nil || len(m.status.Vars) == 0 {
			varsText.WriteString("No variables are set.")
		} else {
			for _, k := range slices.Sorted(maps.Keys(m.status.Vars)) {
				varsText.WriteString(fmt.Sprintf("• %s = %v\n", k, m.status.Vars[k]))
			}
		}
		m.entries = append(m.entries, entry{kind: entryInfo, text: strings.TrimRight(varsText.String(), "\n")})

	case "/copy":
		text := m.lastStory()
		switch {
		case text == "":
			m.entries = append(m.entries, entry{kind: entryInfo, text: "Nothing to copy yet."})
		case clipboard.Unsupported:
			m.entries = append(m.entries, entry{kind: entryError, text: "Clipboard is not available on this system."})
		default:
			if err := clipboard.WriteAll(text); err != nil {
				m.entries = append(m.entries, entry{kind: entryError, text: "Copy failed: " + err.Error()})
			} else {
				m.entries = append(m.entries, entry{kind: entryInfo, text: "Copied to clipboard."})
			}
		}

	case "/saves":
		m.writeChatContent()
		return m, m.listSaves()

	default:
		m.entries = append(m.entries, entry{kind: entryError, text: "Unknown console command. Type /help."})
	}

	m.writeChatContent()
	return m, nil
}

// complete fills in a partly typed command, or lists the candidates when
// more than one fits.
func (m ConsoleUI) complete() ConsoleUI {
	suggestions := command.Suggestions(m.textarea.Value())
	switch len(suggestions) {
	case 0:
	case 1:
		m.textarea.SetValue(suggestions[0] + " ")
	default:
		m.entries = append(m.entries, entry{kind: entryInfo, text: "Did you mean: " + strings.Join(suggestions, ", ")})
		m.writeChatContent()
	}
	return m
}

// lastStory returns the story text of the most recent turn.
func (m ConsoleUI) lastStory() string {
	var lines []string
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.kind == entryPlayer {
			break
		}
		if e.kind == entryStory {
			lines = append([]string{e.text}, lines...)
		}
	}
	return strings.Join(lines, "\n")
}

func savesEntry(saves []handlers.SaveSummary, err error) entry {
	if err != nil {
		return entry{kind: entryError, text: "Could not list saves: " + err.Error()}
	}
	if len(saves) == 0 {
		return entry{kind: entryInfo, text: "No saved games. Type 'save' or 'save 2' to save."}
	}
	var b strings.Builder
	b.WriteString("Save slots:")
	for _, s := range saves {
		fmt.Fprintf(&b, "\n• Slot %d: %s, played %s, saved %s",
			s.Slot, s.Location, time.Duration(s.PlayTime)*time.Second, s.Timestamp.Local().Format("Jan 2 15:04"))
	}
	return entry{kind: entryInfo, text: b.String()}
}

func (m ConsoleUI) start() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		out, err := m.game.Start(ctx)
		return outputMsg{out, err}
	}
}

func (m ConsoleUI) turn(in session.Input) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		out, err := m.game.Turn(ctx, in)
		return outputMsg{out, err}
	}
}

func (m ConsoleUI) refreshStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := m.game.Status(ctx)
		return statusMsg{s, err}
	}
}

func (m ConsoleUI) listSaves() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		saves, err := m.game.Saves(ctx)
		return savesMsg{saves, err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Unsaved progress will be lost.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.72) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := min(max(m.chatViewport.Width-6, 10), 80)

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := range usable {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && frame%4 < 2:
			bar.WriteString("▓")
		default:
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
