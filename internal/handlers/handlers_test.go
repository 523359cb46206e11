package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/last-signal/internal/narrator"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/services/queue"
	"github.com/jwebster45206/last-signal/internal/services/turns"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/story"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scriptedNarrators(t *testing.T) turns.NarratorFactory {
	t.Helper()
	pool, err := persona.Default()
	require.NoError(t, err)
	return func() *narrator.Service {
		return narrator.New(narrator.Scripted{}, pool, narrator.WithLogger(testLogger()))
	}
}

func newProcessor(t *testing.T, store storage.Store, opts ...turns.Option) *turns.Processor {
	t.Helper()
	g, err := story.Default()
	require.NoError(t, err)
	return turns.NewProcessor(store, g, scriptedNarrators(t), testLogger(), opts...)
}

func newSessionsHandler(t *testing.T, store storage.Store, b *events.Broadcaster) *SessionsHandler {
	t.Helper()
	var opts []turns.Option
	if b != nil {
		opts = append(opts, turns.WithBroadcaster(b))
	}
	return NewSessionsHandler(newProcessor(t, store, opts...), nil, testLogger())
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler, playerID string) CreateSessionResponse {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/sessions", CreateSessionRequest{PlayerID: playerID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[CreateSessionResponse](t, rr)
}

func turn(t *testing.T, h http.Handler, id uuid.UUID, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPost, "/v1/sessions/"+id.String()+"/turn", body)
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		mode           narrator.Mode
		expectedStatus int
		expectedHealth string
		expectedStore  string
	}{
		{
			name:           "all healthy",
			mode:           narrator.ModeRemote,
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
			expectedStore:  "healthy",
		},
		{
			name:           "unhealthy storage",
			pingErr:        errors.New("connection failed"),
			mode:           narrator.ModeScripted,
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "degraded",
			expectedStore:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage(0)
			store.SetPingError(tt.pingErr)
			handler := NewHealthHandler(store, tt.mode, testLogger())

			rr := do(t, handler, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			response := decode[HealthResponse](t, rr)
			assert.Equal(t, tt.expectedHealth, response.Status)
			assert.Equal(t, "last-signal", response.Service)
			assert.Equal(t, tt.expectedStore, response.Components["storage"])
			assert.Equal(t, string(tt.mode), response.Components["narrator"])
		})
	}
}

func TestSessionsHandler_CreateAndPlay(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	h := newSessionsHandler(t, store, nil)

	created := createSession(t, h, "")
	assert.Equal(t, created.SessionID.String(), created.Owner)
	assert.Equal(t, session.ModeIntro, created.Output.Mode)
	assert.Equal(t, "=== THE LAST SIGNAL ===", created.Output.Text[0])

	rr := turn(t, h, created.SessionID, map[string]any{"command": "begin"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[session.Output](t, rr)
	assert.Equal(t, session.ModeAwaitingChoice, out.Mode)
	assert.Len(t, out.Choices, 3)

	rr = turn(t, h, created.SessionID, map[string]any{"choose_index": 0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out = decode[session.Output](t, rr)
	assert.Contains(t, out.Text[0], "cathedral of ice and metal")

	rr = do(t, h, http.MethodGet, "/v1/sessions/"+created.SessionID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode[SessionSummary](t, rr)
	assert.Equal(t, session.ModeAwaitingChoice, summary.Mode)
	assert.Equal(t, "Cryo Bay", summary.Location)
	assert.Len(t, summary.Choices, 3)

	rr = do(t, h, http.MethodDelete, "/v1/sessions/"+created.SessionID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodGet, "/v1/sessions/"+created.SessionID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessionsHandler_TurnErrors(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	h := newSessionsHandler(t, store, nil)
	created := createSession(t, h, "player-1")
	require.Equal(t, http.StatusOK, turn(t, h, created.SessionID, map[string]any{"text": "begin"}).Code)

	tests := []struct {
		name     string
		path     string
		body     any
		expected int
	}{
		{"out of range choice", "/v1/sessions/" + created.SessionID.String() + "/turn", map[string]any{"choose_index": 7}, http.StatusBadRequest},
		{"empty turn", "/v1/sessions/" + created.SessionID.String() + "/turn", map[string]any{}, http.StatusBadRequest},
		{"two inputs", "/v1/sessions/" + created.SessionID.String() + "/turn", map[string]any{"text": "look", "command": "help"}, http.StatusBadRequest},
		{"malformed body", "/v1/sessions/" + created.SessionID.String() + "/turn", "not an object", http.StatusBadRequest},
		{"unknown session", "/v1/sessions/" + uuid.NewString() + "/turn", map[string]any{"text": "look"}, http.StatusNotFound},
		{"bad id", "/v1/sessions/nope/turn", map[string]any{"text": "look"}, http.StatusBadRequest},
		{"unknown action", "/v1/sessions/" + created.SessionID.String() + "/dance", nil, http.StatusNotFound},
		{"events disabled", "/v1/sessions/" + created.SessionID.String() + "/events", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.HasSuffix(tt.path, "/events") {
				method = http.MethodGet
			}
			rr := do(t, h, method, tt.path, tt.body)
			assert.Equal(t, tt.expected, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rr).Error)
		})
	}

	// A rejected choice leaves the stored session untouched.
	rr := do(t, h, http.MethodGet, "/v1/sessions/"+created.SessionID.String(), nil)
	summary := decode[SessionSummary](t, rr)
	assert.Equal(t, session.ModeAwaitingChoice, summary.Mode)
	assert.Equal(t, 5, summary.Tension)
}

func TestSessionsHandler_MethodNotAllowed(t *testing.T) {
	h := newSessionsHandler(t, storage.NewMemoryStorage(0), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/v1/sessions", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPut, "/v1/sessions/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/v1/sessions/"+uuid.NewString()+"/turn", nil).Code)
}

func TestSavesHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := storage.NewRedisStorageFromClient(client, testLogger())

	sessions := newSessionsHandler(t, store, nil)
	saves := NewSavesHandler(store, testLogger())

	created := createSession(t, sessions, "ada")
	turn(t, sessions, created.SessionID, map[string]any{"command": "begin"})
	turn(t, sessions, created.SessionID, map[string]any{"choose_index": 0})
	rr := turn(t, sessions, created.SessionID, map[string]any{"command": "save 2"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Game saved."}, decode[session.Output](t, rr).Text)

	rr = do(t, saves, http.MethodGet, "/v1/saves?owner=ada", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]SaveSummary](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Slot)
	assert.Equal(t, "Cryo Bay", list[0].Location)
	assert.Equal(t, storage.SaveVersion, list[0].Version)

	rr = do(t, saves, http.MethodGet, "/v1/saves/ada/2/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	code := decode[ExportResponse](t, rr).Code
	require.NotEmpty(t, code)

	rr = do(t, saves, http.MethodPost, "/v1/saves/grace/1/import", ImportRequest{Code: code})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	imported := decode[SaveSummary](t, rr)
	assert.Equal(t, 1, imported.Slot)
	assert.Equal(t, "Cryo Bay", imported.Location)

	// The imported save loads in another player's session.
	other := createSession(t, sessions, "grace")
	rr = turn(t, sessions, other.SessionID, map[string]any{"command": "load"})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode[session.Output](t, rr)
	assert.Equal(t, []string{"Game loaded.", "Location: Cryo Bay"}, out.Text)
	assert.Len(t, out.Choices, 3)

	assert.Equal(t, http.StatusNoContent, do(t, saves, http.MethodDelete, "/v1/saves/ada/2", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, saves, http.MethodGet, "/v1/saves/ada/2/export", nil).Code)
}

func TestSavesHandler_Errors(t *testing.T) {
	saves := NewSavesHandler(storage.NewMemoryStorage(0), testLogger())

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		expected int
	}{
		{"list without owner", http.MethodGet, "/v1/saves", nil, http.StatusBadRequest},
		{"bad slot", http.MethodDelete, "/v1/saves/ada/zero", nil, http.StatusBadRequest},
		{"import garbage", http.MethodPost, "/v1/saves/ada/1/import", ImportRequest{Code: "!!!"}, http.StatusBadRequest},
		{"import empty", http.MethodPost, "/v1/saves/ada/1/import", ImportRequest{}, http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/v1/saves/ada/1/export", nil, http.StatusMethodNotAllowed},
		{"unknown action", http.MethodGet, "/v1/saves/ada/1/share", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, saves, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.expected, rr.Code, rr.Body.String())
		})
	}
}

func TestEventsHandler_Stream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := storage.NewRedisStorageFromClient(client, testLogger())
	b := events.NewBroadcaster(client, testLogger())

	h := newSessionsHandler(t, store, b)
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	created := createSession(t, h, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/sessions/"+created.SessionID.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() (string, map[string]any) {
		t.Helper()
		var eventType string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				var data map[string]any
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
				return eventType, data
			}
		}
	}

	eventType, data := next()
	assert.Equal(t, "connected", eventType)
	assert.Equal(t, created.SessionID.String(), data["session_id"])

	rr := turn(t, h, created.SessionID, map[string]any{"command": "begin"})
	require.Equal(t, http.StatusOK, rr.Code)

	seen := map[string]int{}
	for seen["turn.completed"] == 0 {
		eventType, data = next()
		seen[eventType]++
		if eventType == "fragment" && seen["fragment"] == 1 {
			assert.Equal(t, "The cold hits you first. Then the silence.", data["text"])
		}
	}
	assert.Positive(t, seen["fragment"])
	assert.Positive(t, seen["mode.changed"])
	assert.Equal(t, "awaiting_choice", data["mode"])
}

func TestSessionsHandler_AsyncTurn(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := storage.NewRedisStorageFromClient(client, testLogger())
	turnQueue := queue.NewTurnQueue(queue.NewClient(client, testLogger()))

	h := NewSessionsHandler(newProcessor(t, store), turnQueue, testLogger())
	created := createSession(t, h, "ada")

	rr := do(t, h, http.MethodPost, "/v1/sessions/"+created.SessionID.String()+"/turn?async=true", map[string]any{"text": "begin"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	queued := decode[QueuedTurnResponse](t, rr)
	assert.Equal(t, created.SessionID, queued.SessionID)

	req, err := turnQueue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, queued.RequestID, req.RequestID)
	assert.Equal(t, "begin", req.Turn.Text)

	rr = do(t, h, http.MethodPost, "/v1/sessions/"+uuid.NewString()+"/turn?async=true", map[string]any{"text": "begin"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Without a queue the async flag is refused.
	sync := newSessionsHandler(t, store, nil)
	rr = do(t, sync, http.MethodPost, "/v1/sessions/"+created.SessionID.String()+"/turn?async=true", map[string]any{"text": "begin"})
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

type heldLocker struct{}

func (heldLocker) Acquire(ctx context.Context, id uuid.UUID, holder string) (bool, error) {
	return false, nil
}

func (heldLocker) Release(ctx context.Context, id uuid.UUID, holder string) error {
	return nil
}

func TestSessionsHandler_BusySession(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	h := NewSessionsHandler(newProcessor(t, store, turns.WithLocker(heldLocker{})), nil, testLogger())
	created := createSession(t, h, "")

	rr := turn(t, h, created.SessionID, map[string]any{"text": "begin"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, decode[ErrorResponse](t, rr).Error, "busy")
}
