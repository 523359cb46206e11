package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

func TestNew(t *testing.T) {
	builder := New()
	if builder == nil {
		t.Fatal("Expected builder to be created, got nil")
	}
	if builder.historyLimit != DefaultHistoryLimit {
		t.Errorf("Expected default history limit of %d, got %d", DefaultHistoryLimit, builder.historyLimit)
	}
	if builder.messages == nil {
		t.Error("Expected messages slice to be initialized")
	}
}

func TestBuilder_FluentInterface(t *testing.T) {
	history := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}
	builder := New().
		WithSystemPrompt("sys").
		WithRating("PG").
		WithHistory(history).
		WithUserMessage("Hello").
		WithHistoryLimit(10)

	if builder.systemPrompt != "sys" {
		t.Error("WithSystemPrompt did not set prompt")
	}
	if builder.rating != "PG" {
		t.Error("WithRating did not set rating")
	}
	if len(builder.history) != 1 {
		t.Error("WithHistory did not set history")
	}
	if builder.userMessage != "Hello" {
		t.Error("WithUserMessage did not set message")
	}
	if builder.historyLimit != 10 {
		t.Error("WithHistoryLimit did not set limit")
	}

	if New().WithHistoryLimit(0).historyLimit != DefaultHistoryLimit {
		t.Error("WithHistoryLimit(0) should keep the default")
	}
}

func TestBuilder_Build_RequiresSystemPrompt(t *testing.T) {
	_, err := New().WithUserMessage("hello").Build()
	if err == nil || err.Error() != "system prompt is required" {
		t.Errorf("Expected 'system prompt is required' error, got: %v", err)
	}
}

func TestBuilder_Build_RequiresUserMessage(t *testing.T) {
	_, err := New().WithSystemPrompt("sys").Build()
	if err == nil || err.Error() != "user message is required" {
		t.Errorf("Expected 'user message is required' error, got: %v", err)
	}
}

func TestBuilder_Build_MessageOrder(t *testing.T) {
	history := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "q1"},
		{Role: chat.ChatRoleAgent, Content: "a1"},
	}
	messages, err := New().
		WithSystemPrompt("You are ARIA.").
		WithRating("PG13").
		WithHistory(history).
		WithUserMessage("Where is everyone?").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != chat.ChatRoleSystem || !strings.HasPrefix(messages[0].Content, "You are ARIA.") {
		t.Errorf("First message should be the system prompt, got %+v", messages[0])
	}
	if !strings.Contains(messages[0].Content, "Content Rating: PG13") {
		t.Errorf("System prompt should carry the rating, got %q", messages[0].Content)
	}
	if messages[1].Content != "q1" || messages[2].Content != "a1" {
		t.Errorf("History out of order: %+v", messages[1:3])
	}
	if messages[3].Role != chat.ChatRoleUser || messages[3].Content != "Where is everyone?" {
		t.Errorf("Last message should be the user message, got %+v", messages[3])
	}
}

func TestBuilder_Build_HistoryWindow(t *testing.T) {
	var history []chat.ChatMessage
	for i := range 10 {
		history = append(history,
			chat.ChatMessage{Role: chat.ChatRoleUser, Content: fmt.Sprintf("q%d", i)},
			chat.ChatMessage{Role: chat.ChatRoleAgent, Content: fmt.Sprintf("a%d", i)},
		)
	}

	tests := []struct {
		name      string
		limit     int
		wantCount int
		wantFirst string
	}{
		{name: "even window", limit: 4, wantCount: 4, wantFirst: "q8"},
		{name: "odd window skips leading reply", limit: 5, wantCount: 4, wantFirst: "q8"},
		{name: "window larger than history", limit: 100, wantCount: 20, wantFirst: "q0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := New().
				WithSystemPrompt("sys").
				WithHistory(history).
				WithHistoryLimit(tt.limit).
				WithUserMessage("now").
				Build()
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			got := messages[1 : len(messages)-1]
			if len(got) != tt.wantCount {
				t.Fatalf("Expected %d history messages, got %d", tt.wantCount, len(got))
			}
			if got[0].Content != tt.wantFirst {
				t.Errorf("Expected window to start at %s, got %s", tt.wantFirst, got[0].Content)
			}
		})
	}
}
