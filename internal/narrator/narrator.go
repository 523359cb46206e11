// Package narrator produces narration, choice analysis and persona dialogue,
// falling back to canned lines whenever the model cannot answer.
package narrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/prompts"
	"github.com/jwebster45206/last-signal/pkg/state"
	"github.com/jwebster45206/last-signal/pkg/textfilter"
)

// DefaultHistoryExchanges bounds each persona's conversation memory.
const DefaultHistoryExchanges = 20

// Sampling used for narration and conversation.
const (
	NarrationTemperature float32 = 0.8
	NarrationMaxTokens           = 300
	PresencePenalty      float32 = 0.6
	FrequencyPenalty     float32 = 0.3

	AnalysisTemperature float32 = 0.3
	AnalysisMaxTokens           = 150
)

// GenericFallbacks are used for narration when no persona is active.
var GenericFallbacks = []string{
	"The interference grows stronger, making it hard to process what's happening...",
	"Static fills your mind as you try to comprehend the situation...",
	"The signal wavers, leaving you momentarily disoriented...",
	"For a moment, everything becomes unclear...",
}

// Service is one play session's narrator. It owns the per-persona
// conversation memory; the backend and personas are shared.
type Service struct {
	backend          Backend
	personas         *persona.Pool
	sanitizer        *textfilter.Sanitizer
	historyExchanges int
	logger           *slog.Logger

	mu       sync.Mutex
	memories map[string]*chat.Memory
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRating sets the content rating used for prompts and output filtering.
func WithRating(rating string) Option {
	return func(s *Service) { s.sanitizer = textfilter.New(rating) }
}

// WithHistoryExchanges sets the per-persona memory bound.
func WithHistoryExchanges(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyExchanges = n
		}
	}
}

// New creates a narrator. A nil backend means Scripted.
func New(backend Backend, personas *persona.Pool, opts ...Option) *Service {
	if backend == nil {
		backend = Scripted{}
	}
	s := &Service{
		backend:          backend,
		personas:         personas,
		sanitizer:        textfilter.New(textfilter.RatingPG13),
		historyExchanges: DefaultHistoryExchanges,
		logger:           slog.Default(),
		memories:         make(map[string]*chat.Memory),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports the backend variant chosen at construction.
func (s *Service) Mode() Mode {
	return s.backend.Mode()
}

func (s *Service) Personas() *persona.Pool {
	return s.personas
}

// GenerateNarration returns narration for prompt in the given context. It
// never fails: any model problem yields a fallback line.
func (s *Service) GenerateNarration(ctx context.Context, ps *prompts.PromptState, prompt string) string {
	remote, ok := s.backend.(Remote)
	if !ok {
		return s.narrationFallback(ps)
	}

	style := ""
	if ps != nil && ps.ActivePersona != "" {
		if pe, err := s.personas.Get(ps.ActivePersona); err == nil {
			style = pe.Prompt
		}
	}

	msgs, err := prompts.NarrationMessages(ps, style, prompt, s.sanitizer.Rating())
	if err != nil {
		s.logger.Warn("Failed to build narration prompt", "error", err)
		services.RecordFallback(services.OpNarration)
		return s.narrationFallback(ps)
	}

	text, err := remote.LLM.Complete(ctx, msgs, services.SamplingParams{
		Operation:        services.OpNarration,
		Temperature:      NarrationTemperature,
		MaxTokens:        NarrationMaxTokens,
		PresencePenalty:  PresencePenalty,
		FrequencyPenalty: FrequencyPenalty,
	})
	if err == nil {
		text = s.sanitizer.Clean(text, "")
	}
	if err != nil || text == "" {
		s.logger.Warn("Narration unavailable, using fallback", "error", err)
		services.RecordFallback(services.OpNarration)
		return s.narrationFallback(ps)
	}
	return text
}

// AnalyzeChoice classifies a player choice. Failures, malformed output and
// scripted mode all return the neutral analysis.
func (s *Service) AnalyzeChoice(ctx context.Context, choiceText string, ps *prompts.PromptState) state.ChoiceAnalysis {
	remote, ok := s.backend.(Remote)
	if !ok {
		return state.NeutralAnalysis()
	}

	msgs, err := prompts.AnalysisMessages(choiceText, ps)
	if err != nil {
		s.logger.Warn("Failed to build analysis prompt", "error", err)
		return state.NeutralAnalysis()
	}

	raw, err := remote.LLM.CompleteStructured(ctx, msgs, services.SamplingParams{
		Operation:   services.OpAnalysis,
		Temperature: AnalysisTemperature,
		MaxTokens:   AnalysisMaxTokens,
	})
	if err != nil {
		s.logger.Warn("Choice analysis unavailable", "error", err)
		services.RecordFallback(services.OpAnalysis)
		return state.NeutralAnalysis()
	}

	var a state.ChoiceAnalysis
	if err := json.Unmarshal(raw, &a); err != nil {
		s.logger.Warn("Malformed choice analysis", "error", err, "raw", string(raw))
		services.RecordFallback(services.OpAnalysis)
		return state.NeutralAnalysis()
	}
	return a.Normalize()
}

// Converse answers an utterance addressed to a persona. In scripted mode
// the reply depends only on the persona id.
func (s *Service) Converse(ctx context.Context, personaID, utterance string) string {
	pe, err := s.personas.Get(personaID)
	if err != nil {
		s.logger.Warn("Unknown persona", "persona", personaID)
		return s.personas.UnknownPersona
	}

	remote, ok := s.backend.(Remote)
	if !ok {
		reply := s.personas.Scripted(pe.ID)
		s.remember(pe.ID, utterance, reply)
		return reply
	}

	history := s.Memory(pe.ID)
	msgs, err := prompts.ConversationMessages(pe.SystemPrompt(s.personas.BasePrompt), history, utterance, s.sanitizer.Rating(), 2*s.historyExchanges)
	if err != nil {
		s.logger.Warn("Failed to build conversation prompt", "persona", pe.ID, "error", err)
		services.RecordFallback(services.OpConverse)
		return s.personas.ErrorLine(pe.ID)
	}

	temperature := pe.Temperature
	if temperature == 0 {
		temperature = NarrationTemperature
	}
	reply, err := remote.LLM.Complete(ctx, msgs, services.SamplingParams{
		Operation:        services.OpConverse,
		Temperature:      temperature,
		MaxTokens:        NarrationMaxTokens,
		PresencePenalty:  PresencePenalty,
		FrequencyPenalty: FrequencyPenalty,
	})
	if err == nil {
		reply = s.sanitizer.Clean(reply, pe.Name)
	}
	if err != nil || reply == "" {
		s.logger.Warn("Persona reply unavailable, using fallback", "persona", pe.ID, "error", err)
		services.RecordFallback(services.OpConverse)
		return s.personas.ErrorLine(pe.ID)
	}

	s.remember(pe.ID, utterance, reply)
	return reply
}

// EndConversation forgets everything said to a persona.
func (s *Service) EndConversation(personaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, personaID)
}

// Reset forgets all conversations.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = make(map[string]*chat.Memory)
}

// Memory returns a copy of a persona's conversation memory.
func (s *Service) Memory(personaID string) []chat.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[personaID]; ok {
		return m.Messages()
	}
	return nil
}

// Snapshot copies all conversation memories for persistence.
func (s *Service) Snapshot() map[string][]chat.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]chat.ChatMessage, len(s.memories))
	for id, m := range s.memories {
		if m.Len() > 0 {
			out[id] = m.Messages()
		}
	}
	return out
}

// Restore replaces all memories, applying the current bound.
func (s *Service) Restore(snapshot map[string][]chat.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = make(map[string]*chat.Memory, len(snapshot))
	for id, msgs := range snapshot {
		m := chat.NewMemory(s.historyExchanges)
		m.Restore(msgs)
		s.memories[id] = m
	}
}

func (s *Service) remember(personaID, utterance, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[personaID]
	if !ok {
		m = chat.NewMemory(s.historyExchanges)
		s.memories[personaID] = m
	}
	m.AddExchange(utterance, reply)
}

// narrationFallback draws from the active persona's lines during a
// conversation and from the generic pool otherwise.
func (s *Service) narrationFallback(ps *prompts.PromptState) string {
	if ps != nil && ps.ActivePersona != "" {
		if pe, err := s.personas.Get(ps.ActivePersona); err == nil {
			return s.personas.Scripted(pe.ID)
		}
	}
	return GenericFallbacks[rand.IntN(len(GenericFallbacks))]
}
