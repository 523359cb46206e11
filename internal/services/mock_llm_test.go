package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

func TestMockLLMService(t *testing.T) {
	mockService := NewMockLLMAPI()
	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "Hello"},
	}

	response, err := mockService.Complete(context.Background(), messages, SamplingParams{Operation: OpNarration})
	if err != nil {
		t.Errorf("Complete failed: %v", err)
	}
	if response != "Mock response" {
		t.Errorf("Expected 'Mock response', got '%s'", response)
	}

	raw, err := mockService.CompleteStructured(context.Background(), messages, SamplingParams{Operation: OpAnalysis})
	if err != nil {
		t.Errorf("CompleteStructured failed: %v", err)
	}
	if len(raw) == 0 {
		t.Error("Expected a default structured response")
	}

	ok, err := mockService.ValidateKey(context.Background())
	if err != nil || !ok {
		t.Errorf("Expected key to validate, got %v %v", ok, err)
	}

	complete, structured, validate := mockService.GetCalls()
	if len(complete) != 1 {
		t.Errorf("Expected 1 Complete call, got %d", len(complete))
	}
	if complete[0].Params.Operation != OpNarration {
		t.Errorf("Expected operation %q, got %q", OpNarration, complete[0].Params.Operation)
	}
	if len(structured) != 1 {
		t.Errorf("Expected 1 CompleteStructured call, got %d", len(structured))
	}
	if validate != 1 {
		t.Errorf("Expected 1 ValidateKey call, got %d", validate)
	}

	mockService.Reset()
	complete, _, validate = mockService.GetCalls()
	if len(complete) != 0 || validate != 0 {
		t.Error("Reset did not clear call tracking")
	}
}

func TestMockLLMService_ErrorHandling(t *testing.T) {
	mockService := NewMockLLMAPI()

	expectedErr := fmt.Errorf("upstream unavailable")
	mockService.SetCompleteError(expectedErr)

	_, err := mockService.Complete(context.Background(), nil, SamplingParams{})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != expectedErr.Error() {
		t.Errorf("Expected error '%s', got '%s'", expectedErr.Error(), err.Error())
	}

	mockService.SetKeyValid(false, nil)
	ok, err := mockService.ValidateKey(context.Background())
	if ok || err != nil {
		t.Errorf("Expected rejected key without error, got %v %v", ok, err)
	}
}
