package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

// DefaultHistoryLimit is the number of history messages sent with a
// conversation turn (20 exchanges).
const DefaultHistoryLimit = 40

// Builder constructs chat messages for LLM interaction using a fluent interface.
type Builder struct {
	systemPrompt string
	rating       string
	history      []chat.ChatMessage
	userMessage  string
	historyLimit int
	messages     []chat.ChatMessage
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		historyLimit: DefaultHistoryLimit,
		messages:     make([]chat.ChatMessage, 0),
	}
}

func (b *Builder) WithSystemPrompt(prompt string) *Builder {
	b.systemPrompt = prompt
	return b
}

// WithRating appends the content rating directive to the system prompt.
func (b *Builder) WithRating(rating string) *Builder {
	b.rating = rating
	return b
}

// WithHistory sets prior conversation messages, oldest first.
func (b *Builder) WithHistory(history []chat.ChatMessage) *Builder {
	b.history = history
	return b
}

func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithHistoryLimit sets the history window size in messages. Values below
// one keep the default.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	if limit > 0 {
		b.historyLimit = limit
	}
	return b
}

// Build constructs and returns the final message array for LLM consumption.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if strings.TrimSpace(b.systemPrompt) == "" {
		return nil, fmt.Errorf("system prompt is required")
	}
	if strings.TrimSpace(b.userMessage) == "" {
		return nil, fmt.Errorf("user message is required")
	}

	b.messages = make([]chat.ChatMessage, 0, len(b.history)+2)

	// 1. System prompt
	b.addSystemPrompt()

	// 2. Windowed history
	b.addHistory()

	// 3. User message
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: b.userMessage,
	})

	return b.messages, nil
}

func (b *Builder) addSystemPrompt() {
	content := b.systemPrompt
	if b.rating != "" {
		content += "\n\nContent Rating: " + b.rating + " (" + strings.TrimSpace(GetContentRatingPrompt(b.rating)) + ")"
	}
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: content,
	})
}

// addHistory keeps the newest historyLimit messages, never starting the
// window on an assistant reply.
func (b *Builder) addHistory() {
	h := b.history
	if len(h) > b.historyLimit {
		h = h[len(h)-b.historyLimit:]
	}
	for len(h) > 0 && h[0].Role == chat.ChatRoleAgent {
		h = h[1:]
	}
	b.messages = append(b.messages, h...)
}
