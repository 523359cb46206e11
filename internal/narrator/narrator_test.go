package narrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/prompts"
	"github.com/jwebster45206/last-signal/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPool(t *testing.T) *persona.Pool {
	t.Helper()
	p, err := persona.Default()
	require.NoError(t, err)
	return p
}

func remoteService(t *testing.T, mock *services.MockLLMAPI, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return New(Remote{LLM: mock}, testPool(t), opts...)
}

func testContext() *prompts.PromptState {
	return prompts.ToPromptState(state.New(map[string]any{state.VarLocation: "Cryo Bay"}), []string{"You wake."})
}

func TestSelectBackend(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, ModeScripted, SelectBackend(ctx, nil, false, testLogger()).Mode())

	valid := services.NewMockLLMAPI()
	assert.Equal(t, ModeRemote, SelectBackend(ctx, valid, false, testLogger()).Mode())

	rejected := services.NewMockLLMAPI()
	rejected.SetKeyValid(false, nil)
	assert.Equal(t, ModeScripted, SelectBackend(ctx, rejected, false, testLogger()).Mode())

	unreachable := services.NewMockLLMAPI()
	unreachable.SetKeyValid(false, errors.New("dial tcp: connection refused"))
	assert.Equal(t, ModeScripted, SelectBackend(ctx, unreachable, false, testLogger()).Mode())

	skipped := services.NewMockLLMAPI()
	skipped.SetKeyValid(false, nil)
	assert.Equal(t, ModeRemote, SelectBackend(ctx, skipped, true, testLogger()).Mode())
	_, _, calls := skipped.GetCalls()
	assert.Zero(t, calls)
}

func TestGenerateNarration_Remote(t *testing.T) {
	mock := services.NewMockLLMAPI()
	mock.SetCompleteResponse(`"The cold bites deeper."`)
	svc := remoteService(t, mock)

	text := svc.GenerateNarration(context.Background(), testContext(), "describe the cold")
	assert.Equal(t, "The cold bites deeper.", text)

	calls, _, _ := mock.GetCalls()
	require.Len(t, calls, 1)
	p := calls[0].Params
	assert.Equal(t, services.OpNarration, p.Operation)
	assert.Equal(t, NarrationTemperature, p.Temperature)
	assert.Equal(t, NarrationMaxTokens, p.MaxTokens)
	assert.Equal(t, PresencePenalty, p.PresencePenalty)
	assert.Equal(t, FrequencyPenalty, p.FrequencyPenalty)
	assert.Contains(t, calls[0].Messages[1].Content, "Generate a response for: describe the cold")
}

func TestGenerateNarration_FailureFallsBack(t *testing.T) {
	mock := services.NewMockLLMAPI()
	mock.SetCompleteError(errors.New("503 service unavailable"))
	svc := remoteService(t, mock)

	for range 20 {
		text := svc.GenerateNarration(context.Background(), testContext(), "anything")
		assert.Contains(t, GenericFallbacks, text)
	}
}

func TestGenerateNarration_EmptyReplyFallsBack(t *testing.T) {
	mock := services.NewMockLLMAPI()
	mock.SetCompleteResponse(`  ""  `)
	svc := remoteService(t, mock)

	assert.Contains(t, GenericFallbacks, svc.GenerateNarration(context.Background(), testContext(), "x"))
}

func TestGenerateNarration_PersonaFallback(t *testing.T) {
	pool := testPool(t)
	svc := New(Scripted{}, pool, WithLogger(testLogger()))

	ps := testContext()
	ps.ActivePersona = "NOVA"
	nova, _ := pool.Get("NOVA")

	for range 20 {
		assert.Contains(t, nova.Scripted, svc.GenerateNarration(context.Background(), ps, "x"))
	}
}

func TestGenerateNarration_PersonaStyle(t *testing.T) {
	mock := services.NewMockLLMAPI()
	svc := remoteService(t, mock)

	ps := testContext()
	ps.ActivePersona = "SAGE"
	svc.GenerateNarration(context.Background(), ps, "x")

	calls, _, _ := mock.GetCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "You are SAGE")
}

func TestAnalyzeChoice(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(m *services.MockLLMAPI)
		expected state.ChoiceAnalysis
	}{
		{
			name: "valid analysis normalized",
			setup: func(m *services.MockLLMAPI) {
				m.SetStructuredResponse(`{"impact":"Negative","traits":["Reckless","reckless"],"tension_change":5}`)
			},
			expected: state.ChoiceAnalysis{Impact: state.ImpactNegative, Traits: []string{"reckless"}, TensionDelta: 2},
		},
		{
			name:     "transport failure is neutral",
			setup:    func(m *services.MockLLMAPI) { m.SetStructuredError(errors.New("timeout")) },
			expected: state.NeutralAnalysis(),
		},
		{
			name:     "malformed payload is neutral",
			setup:    func(m *services.MockLLMAPI) { m.SetStructuredResponse(`{"impact": 7`) },
			expected: state.NeutralAnalysis(),
		},
		{
			name:     "wrong field types are neutral",
			setup:    func(m *services.MockLLMAPI) { m.SetStructuredResponse(`{"tension_change":"high"}`) },
			expected: state.NeutralAnalysis(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := services.NewMockLLMAPI()
			tt.setup(mock)
			svc := remoteService(t, mock)

			got := svc.AnalyzeChoice(context.Background(), "Call out for help", testContext())
			assert.Equal(t, tt.expected, got)

			_, structured, _ := mock.GetCalls()
			require.Len(t, structured, 1)
			assert.Equal(t, AnalysisTemperature, structured[0].Params.Temperature)
			assert.Equal(t, AnalysisMaxTokens, structured[0].Params.MaxTokens)
		})
	}
}

func TestAnalyzeChoice_ScriptedIsNeutral(t *testing.T) {
	svc := New(Scripted{}, testPool(t))
	assert.Equal(t, state.NeutralAnalysis(), svc.AnalyzeChoice(context.Background(), "x", testContext()))
}

func TestConverse_Scripted(t *testing.T) {
	pool := testPool(t)
	svc := New(Scripted{}, pool, WithLogger(testLogger()))
	aria, _ := pool.Get("ARIA")

	for i := range 30 {
		// Replies depend only on the persona, never the utterance.
		reply := svc.Converse(context.Background(), "ARIA", fmt.Sprintf("question %d about %s", i, strings.Repeat("x", i)))
		assert.Contains(t, aria.Scripted, reply)
	}
	assert.Equal(t, ModeScripted, svc.Mode())
}

func TestConverse_UnknownPersona(t *testing.T) {
	svc := New(Scripted{}, testPool(t), WithLogger(testLogger()))
	assert.Equal(t, "I'm experiencing technical difficulties.", svc.Converse(context.Background(), "HAL", "open the pod bay doors"))
	assert.Empty(t, svc.Snapshot())
}

func TestConverse_Remote(t *testing.T) {
	mock := services.NewMockLLMAPI()
	mock.SetCompleteResponse("ARIA: Oh hello! Dr. Morrison will be right back!")
	svc := remoteService(t, mock)

	reply := svc.Converse(context.Background(), "ARIA", "Where is everyone?")
	assert.Equal(t, "Oh hello! Dr. Morrison will be right back!", reply)

	assert.Equal(t, []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "Where is everyone?"},
		{Role: chat.ChatRoleAgent, Content: "Oh hello! Dr. Morrison will be right back!"},
	}, svc.Memory("ARIA"))

	svc.Converse(context.Background(), "ARIA", "Are you sure?")
	calls, _, _ := mock.GetCalls()
	require.Len(t, calls, 2)

	second := calls[1]
	assert.Equal(t, chat.ChatRoleSystem, second.Messages[0].Role)
	assert.Contains(t, second.Messages[0].Content, "Research Station Prometheus")
	assert.Contains(t, second.Messages[0].Content, "You are ARIA")
	assert.Equal(t, "Where is everyone?", second.Messages[1].Content)
	assert.Equal(t, "Are you sure?", second.Messages[len(second.Messages)-1].Content)
	assert.InDelta(t, 0.7, second.Params.Temperature, 0.001)
}

func TestConverse_RemoteFailureLeavesMemory(t *testing.T) {
	mock := services.NewMockLLMAPI()
	svc := remoteService(t, mock)
	svc.Converse(context.Background(), "ECHO", "hello")
	before := svc.Memory("ECHO")

	mock.SetCompleteError(errors.New("boom"))
	reply := svc.Converse(context.Background(), "ECHO", "are you there?")

	assert.Equal(t, "ERROR... ERROR... systems failing... failing... ailing... sailing into darkness...", reply)
	assert.Equal(t, svc.Personas().ErrorLine("ECHO"), reply)
	assert.Equal(t, before, svc.Memory("ECHO"))
}

func TestConverse_MemoryBound(t *testing.T) {
	mock := services.NewMockLLMAPI()
	svc := remoteService(t, mock, WithHistoryExchanges(3))

	for i := range 25 {
		svc.Converse(context.Background(), "SAGE", fmt.Sprintf("q%d", i))
		assert.LessOrEqual(t, len(svc.Memory("SAGE")), 6)
	}
	mem := svc.Memory("SAGE")
	assert.Equal(t, "q22", mem[0].Content)
}

func TestEndConversationAndReset(t *testing.T) {
	svc := New(Scripted{}, testPool(t), WithLogger(testLogger()))
	svc.Converse(context.Background(), "ARIA", "hi")
	svc.Converse(context.Background(), "NOVA", "hi")

	svc.EndConversation("ARIA")
	assert.Nil(t, svc.Memory("ARIA"))
	assert.Len(t, svc.Memory("NOVA"), 2)

	svc.Reset()
	assert.Empty(t, svc.Snapshot())
}

func TestSnapshotRestore(t *testing.T) {
	svc := New(Scripted{}, testPool(t), WithLogger(testLogger()))
	svc.Converse(context.Background(), "ARIA", "one")
	svc.Converse(context.Background(), "SAGE", "two")
	snap := svc.Snapshot()

	restored := New(Scripted{}, testPool(t))
	restored.Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, svc.Memory("SAGE"), restored.Memory("SAGE"))
}
