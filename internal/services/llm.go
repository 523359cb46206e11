package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

var (
	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrMalformedResponse is returned when structured output is not a JSON object.
	ErrMalformedResponse = errors.New("malformed structured response")
)

// Operation labels used for metrics and logs.
const (
	OpNarration = "narration"
	OpAnalysis  = "analysis"
	OpConverse  = "converse"
	OpValidate  = "validate"
)

// SamplingParams bounds a single completion request.
type SamplingParams struct {
	Operation        string
	Temperature      float32
	MaxTokens        int
	PresencePenalty  float32
	FrequencyPenalty float32
}

// LLMService defines the interface for interacting with the text-generation API
type LLMService interface {
	// Complete returns the text of the first completion choice.
	Complete(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (string, error)

	// CompleteStructured requests a JSON object response and returns it raw.
	CompleteStructured(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (json.RawMessage, error)

	// ValidateKey performs a minimal request to check the credential.
	// It reports false, not an error, when the key is rejected.
	ValidateKey(ctx context.Context) (bool, error)

	// ListModels lists the models available to the credential.
	ListModels(ctx context.Context) ([]string, error)

	// ModelName returns the configured model.
	ModelName() string
}
