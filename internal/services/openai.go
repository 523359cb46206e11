package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// OpenAIService implements LLMService against any OpenAI-compatible
// chat-completions endpoint.
type OpenAIService struct {
	client    *openai.Client
	modelName string
	logger    *slog.Logger
}

var _ LLMService = (*OpenAIService)(nil)

// NewOpenAIService creates a client. baseURL may be empty for the public
// OpenAI endpoint; timeout bounds every request.
func NewOpenAIService(apiKey, baseURL, modelName string, timeout time.Duration, logger *slog.Logger) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIService{
		client:    openai.NewClientWithConfig(cfg),
		modelName: modelName,
		logger:    logger,
	}
}

func (s *OpenAIService) ModelName() string {
	return s.modelName
}

// Complete sends the messages and returns the first choice's content.
func (s *OpenAIService) Complete(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (string, error) {
	resp, err := s.create(ctx, s.request(messages, params), params.Operation)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// CompleteStructured asks for a JSON object and checks that one came back.
func (s *OpenAIService) CompleteStructured(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (json.RawMessage, error) {
	req := s.request(messages, params)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	resp, err := s.create(ctx, req, params.Operation)
	if err != nil {
		return nil, err
	}

	raw := json.RawMessage(strings.TrimSpace(resp.Choices[0].Message.Content))
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return raw, nil
}

// ValidateKey sends a one-token request. A 401 or 403 means the key is
// unusable; other failures are returned as errors.
func (s *OpenAIService) ValidateKey(ctx context.Context) (bool, error) {
	req := openai.ChatCompletionRequest{
		Model: s.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Test"},
			{Role: openai.ChatMessageRoleUser, Content: "Test"},
		},
		MaxTokens: 1,
	}
	if _, err := s.create(ctx, req, OpValidate); err != nil {
		if status := httpStatus(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *OpenAIService) ListModels(ctx context.Context) ([]string, error) {
	list, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *OpenAIService) request(messages []chat.ChatMessage, params SamplingParams) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: toOpenAIRole(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:            s.modelName,
		Messages:         msgs,
		Temperature:      params.Temperature,
		MaxTokens:        params.MaxTokens,
		PresencePenalty:  params.PresencePenalty,
		FrequencyPenalty: params.FrequencyPenalty,
	}
}

// create performs the call and records metrics for it.
func (s *OpenAIService) create(ctx context.Context, req openai.ChatCompletionRequest, operation string) (openai.ChatCompletionResponse, error) {
	if operation == "" {
		operation = "unknown"
	}
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	aiRequestDuration.WithLabelValues(s.modelName, operation).Observe(time.Since(start).Seconds())

	if err != nil {
		aiRequestsTotal.WithLabelValues(s.modelName, operation, "error").Inc()
		s.logger.Warn("Chat completion failed",
			"model", s.modelName,
			"operation", operation,
			"status", httpStatus(err),
			"error", err)
		return resp, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		aiRequestsTotal.WithLabelValues(s.modelName, operation, "empty").Inc()
		return resp, ErrEmptyResponse
	}

	aiRequestsTotal.WithLabelValues(s.modelName, operation, "ok").Inc()
	aiTokens.WithLabelValues(s.modelName, "prompt").Observe(float64(resp.Usage.PromptTokens))
	aiTokens.WithLabelValues(s.modelName, "completion").Observe(float64(resp.Usage.CompletionTokens))
	s.logger.Debug("Chat completion succeeded",
		"model", s.modelName,
		"operation", operation,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start))
	return resp, nil
}

func toOpenAIRole(role string) string {
	switch role {
	case chat.ChatRoleSystem:
		return openai.ChatMessageRoleSystem
	case chat.ChatRoleAgent:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// httpStatus extracts the HTTP status from a go-openai error, or 0.
func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
