package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

// MockLLMAPI is a mock implementation of LLMService for testing
type MockLLMAPI struct {
	CompleteFunc           func(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (string, error)
	CompleteStructuredFunc func(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (json.RawMessage, error)
	ValidateKeyFunc        func(ctx context.Context) (bool, error)
	ListModelsFunc         func(ctx context.Context) ([]string, error)

	// Track calls for testing
	CompleteCalls           []CompleteCall
	CompleteStructuredCalls []CompleteCall
	ValidateKeyCalls        int
	ListModelsCalls         int

	mu sync.Mutex // protects all fields above
}

type CompleteCall struct {
	Messages []chat.ChatMessage
	Params   SamplingParams
}

var _ LLMService = (*MockLLMAPI)(nil)

// NewMockLLMAPI creates a new mock LLM service
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{
		CompleteCalls:           make([]CompleteCall, 0),
		CompleteStructuredCalls: make([]CompleteCall, 0),
	}
}

func (m *MockLLMAPI) ModelName() string {
	return "mock-model"
}

// Complete mocks a text completion
func (m *MockLLMAPI) Complete(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (string, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{Messages: messages, Params: params})
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, params)
	}
	return "Mock response", nil
}

// CompleteStructured mocks a JSON completion
func (m *MockLLMAPI) CompleteStructured(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (json.RawMessage, error) {
	m.mu.Lock()
	m.CompleteStructuredCalls = append(m.CompleteStructuredCalls, CompleteCall{Messages: messages, Params: params})
	fn := m.CompleteStructuredFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, params)
	}
	return json.RawMessage(`{"impact":"neutral","traits":[],"tension_change":0}`), nil
}

// ValidateKey mocks the credential pre-flight
func (m *MockLLMAPI) ValidateKey(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.ValidateKeyCalls++
	fn := m.ValidateKeyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return true, nil
}

// ListModels mocks model listing
func (m *MockLLMAPI) ListModels(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.ListModelsCalls++
	fn := m.ListModelsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []string{"mock-model"}, nil
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = make([]CompleteCall, 0)
	m.CompleteStructuredCalls = make([]CompleteCall, 0)
	m.ValidateKeyCalls = 0
	m.ListModelsCalls = 0
}

// SetCompleteResponse sets up the mock to return a fixed completion
func (m *MockLLMAPI) SetCompleteResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (string, error) {
		return text, nil
	}
}

// SetCompleteError sets up the mock to return an error on Complete
func (m *MockLLMAPI) SetCompleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (string, error) {
		return "", err
	}
}

// SetStructuredResponse sets up the mock to return a fixed JSON body
func (m *MockLLMAPI) SetStructuredResponse(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteStructuredFunc = func(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (json.RawMessage, error) {
		return json.RawMessage(raw), nil
	}
}

// SetStructuredError sets up the mock to return an error on CompleteStructured
func (m *MockLLMAPI) SetStructuredError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteStructuredFunc = func(ctx context.Context, messages []chat.ChatMessage, params SamplingParams) (json.RawMessage, error) {
		return nil, err
	}
}

// SetKeyValid sets up the mock's ValidateKey result
func (m *MockLLMAPI) SetKeyValid(valid bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidateKeyFunc = func(ctx context.Context) (bool, error) {
		return valid, err
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMAPI) GetCalls() (complete []CompleteCall, structured []CompleteCall, validate int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	complete = make([]CompleteCall, len(m.CompleteCalls))
	copy(complete, m.CompleteCalls)

	structured = make([]CompleteCall, len(m.CompleteStructuredCalls))
	copy(structured, m.CompleteStructuredCalls)

	return complete, structured, m.ValidateKeyCalls
}
