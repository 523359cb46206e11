package narrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/jwebster45206/last-signal/internal/services"
)

// Mode names the backend variant.
type Mode string

const (
	ModeScripted Mode = "scripted"
	ModeRemote   Mode = "remote"
)

// Backend is how a narrator produces text: from fixed phrase pools, or
// from a remote model. It is chosen once and never re-checked per call.
type Backend interface {
	Mode() Mode
	backend()
}

// Scripted answers from the persona pools without any network access.
type Scripted struct{}

func (Scripted) Mode() Mode { return ModeScripted }
func (Scripted) backend() {}

// Remote answers through a text-generation service.
type Remote struct {
	LLM services.LLMService
}

func (Remote) Mode() Mode { return ModeRemote }
func (Remote) backend() {}

const validateTimeout = 10 * time.Second

// SelectBackend runs the credential pre-flight and picks the backend.
// A nil service, a rejected key or an unreachable endpoint all select
// Scripted. With skipValidation the service is trusted as is.
func SelectBackend(ctx context.Context, llm services.LLMService, skipValidation bool, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if llm == nil {
		logger.Info("No text-generation credential configured, using scripted narration")
		return Scripted{}
	}
	if skipValidation {
		logger.Info("Skipping credential validation", "model", llm.ModelName())
		return Remote{LLM: llm}
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	ok, err := llm.ValidateKey(ctx)
	switch {
	case err != nil:
		logger.Warn("Credential validation failed, using scripted narration", "model", llm.ModelName(), "error", err)
		return Scripted{}
	case !ok:
		logger.Warn("Credential rejected, using scripted narration", "model", llm.ModelName())
		return Scripted{}
	}
	logger.Info("Credential validated, using remote narration", "model", llm.ModelName())
	return Remote{LLM: llm}
}
