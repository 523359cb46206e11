package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/textfilter"
)

// NarratorSystemPrompt is the fixed, persona-neutral narrator directive.
const NarratorSystemPrompt = `You are the AI narrator for "The Last Signal", a mysterious sci-fi text adventure game.

Guidelines:
- Maintain a tense, atmospheric tone
- Use vivid sensory descriptions
- Keep responses to 2-3 paragraphs max
- React meaningfully to player choices
- Introduce subtle mysteries and clues
- Never break character or acknowledge being an AI
- Build on previously established story elements`

// AnalysisPrompt asks for the structured analysis of a player choice.
const AnalysisPrompt = `Analyze the player choice in the context of a sci-fi adventure game. Return a JSON object with: impact (positive/negative/neutral), traits (array of personality traits shown), and tension_change (-2 to +2).`

const narrationUserTemplate = "Story context:\nLocation: %s\nRecent events: %s\n\nGenerate a response for: %s\n\nMake sure to maintain continuity with the established story."

// Content rating prompts.
const ContentRatingG = `Write content suitable for young children. Avoid violence and frightening imagery. `
const ContentRatingPG = `Write content suitable for families. Mild peril and eerie tension are fine, but avoid strong language and graphic injury. `
const ContentRatingPG13 = `Write content appropriate for teenagers. Dread, peril and mild language are fine, but avoid graphic violence and explicit content. `
const ContentRatingR = `Write for adult audiences. Horror and strong language are allowed when they serve the story. `

// GetContentRatingPrompt returns the directive for a rating.
func GetContentRatingPrompt(rating string) string {
	switch textfilter.NormalizeRating(rating) {
	case textfilter.RatingG:
		return ContentRatingG
	case textfilter.RatingPG:
		return ContentRatingPG
	case textfilter.RatingR:
		return ContentRatingR
	default:
		return ContentRatingPG13
	}
}

// NarrationSystemPrompt combines the narrator directive, an optional persona
// style, the mood and the tension level.
func NarrationSystemPrompt(ps *PromptState, personaStyle string) string {
	var sb strings.Builder
	sb.WriteString(NarratorSystemPrompt)
	if personaStyle != "" {
		sb.WriteString("\n\nActive station AI:\n")
		sb.WriteString(strings.TrimSpace(personaStyle))
	}
	fmt.Fprintf(&sb, "\n\nCurrent mood: %s\nCurrent tension level: %d/10", ps.Mood, ps.Tension)
	return sb.String()
}

// NarrationUserPrompt is the user turn of a narration request.
func NarrationUserPrompt(ps *PromptState, prompt string) string {
	recent := "None"
	if len(ps.RecentEvents) > 0 {
		recent = strings.Join(ps.RecentEvents, " ")
	}
	return fmt.Sprintf(narrationUserTemplate, ps.Location, recent, prompt)
}

// NarrationMessages builds the messages for a one-shot narration request.
func NarrationMessages(ps *PromptState, personaStyle, prompt, rating string) ([]chat.ChatMessage, error) {
	if ps == nil {
		return nil, fmt.Errorf("prompt state is required")
	}
	return New().
		WithSystemPrompt(NarrationSystemPrompt(ps, personaStyle)).
		WithRating(rating).
		WithUserMessage(NarrationUserPrompt(ps, prompt)).
		Build()
}

// AnalysisMessages builds the messages for a choice analysis request.
func AnalysisMessages(choiceText string, ps *PromptState) ([]chat.ChatMessage, error) {
	if ps == nil {
		return nil, fmt.Errorf("prompt state is required")
	}
	ctxJSON, err := json.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prompt state: %w", err)
	}
	return New().
		WithSystemPrompt(AnalysisPrompt).
		WithUserMessage(fmt.Sprintf("Choice: %q\nContext: %s", choiceText, ctxJSON)).
		Build()
}

// ConversationMessages builds a persona conversation turn: the persona's
// system prompt, the trailing memory window and the new utterance.
func ConversationMessages(systemPrompt string, history []chat.ChatMessage, utterance, rating string, historyLimit int) ([]chat.ChatMessage, error) {
	return New().
		WithSystemPrompt(systemPrompt).
		WithRating(rating).
		WithHistory(history).
		WithHistoryLimit(historyLimit).
		WithUserMessage(utterance).
		Build()
}
