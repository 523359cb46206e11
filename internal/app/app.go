// Package app assembles the pieces every binary needs from configuration.
package app

import (
	"context"
	"log/slog"

	"github.com/jwebster45206/last-signal/internal/config"
	"github.com/jwebster45206/last-signal/internal/narrator"
	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/story"
)

// LoadContent reads the story and persona files, falling back to the
// built-in content when a path is not configured.
func LoadContent(cfg *config.Config, log *slog.Logger) (*story.Graph, *persona.Pool, error) {
	var (
		graph    *story.Graph
		personas *persona.Pool
		err      error
	)
	if cfg.StoryFile != "" {
		graph, err = story.LoadFile(cfg.StoryFile)
	} else {
		graph, err = story.Default()
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.PersonaFile != "" {
		personas, err = persona.LoadFile(cfg.PersonaFile)
	} else {
		personas, err = persona.Default()
	}
	if err != nil {
		return nil, nil, err
	}
	if unreachable := graph.Unreachable(); len(unreachable) > 0 {
		log.Warn("Story has unreachable nodes", "nodes", unreachable)
	}
	return graph, personas, nil
}

// Backend picks remote narration when a credential is configured and
// validates, scripted narration otherwise.
func Backend(ctx context.Context, cfg *config.Config, log *slog.Logger) narrator.Backend {
	var llm services.LLMService
	if cfg.HasCredential() {
		llm = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelName, cfg.AITimeout, log)
	}
	return narrator.SelectBackend(ctx, llm, cfg.SkipKeyValidation, log)
}

// Narrators returns a factory for per-session narrators sharing backend.
func Narrators(cfg *config.Config, backend narrator.Backend, personas *persona.Pool, log *slog.Logger) func() *narrator.Service {
	return func() *narrator.Service {
		return narrator.New(backend, personas,
			narrator.WithLogger(log),
			narrator.WithRating(cfg.ContentRating),
			narrator.WithHistoryExchanges(cfg.HistoryExchanges))
	}
}
