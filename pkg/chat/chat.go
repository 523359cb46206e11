package chat

import (
	"fmt"
	"strings"
)

// MaxMessageLength bounds a single line of player input.
const MaxMessageLength = 500

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Narrator or persona
	ChatRoleSystem = "system"    // Directives
)

// ChatMessage is a single message in a chat-completions conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// TurnRequest is one player input sent to the API. Exactly one of the
// fields must be set.
type TurnRequest struct {
	ChooseIndex *int   `json:"choose_index,omitempty"`
	Text        string `json:"text,omitempty"`
	Command     string `json:"command,omitempty"`
}

func (tr *TurnRequest) Validate() error {
	set := 0
	if tr.ChooseIndex != nil {
		set++
		if *tr.ChooseIndex < 0 {
			return fmt.Errorf("choose_index cannot be negative")
		}
	}
	if strings.TrimSpace(tr.Text) != "" {
		set++
	}
	if strings.TrimSpace(tr.Command) != "" {
		set++
	}
	switch set {
	case 0:
		return fmt.Errorf("one of choose_index, text or command is required")
	case 1:
	default:
		return fmt.Errorf("only one of choose_index, text or command may be set")
	}
	if len(tr.Text) > MaxMessageLength || len(tr.Command) > MaxMessageLength {
		return fmt.Errorf("message exceeds maximum length of %d characters", MaxMessageLength)
	}
	return nil
}

// WithSpeaker prefixes a line with the speaker's name unless the line
// already starts with a "Name:" prefix.
func WithSpeaker(speaker, message string) string {
	if speaker == "" {
		return message
	}
	if idx := strings.Index(message, ":"); idx > 0 && idx < 30 {
		prefix := message[:idx]
		if !strings.ContainsAny(prefix, ".!?\n") && len(strings.Fields(prefix)) <= 3 {
			return message
		}
	}
	return speaker + ": " + message
}
