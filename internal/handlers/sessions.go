package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/logger"
	"github.com/jwebster45206/last-signal/internal/middleware"
	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/internal/services/turns"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/pkg/chat"
	"github.com/jwebster45206/last-signal/pkg/queue"
	"github.com/jwebster45206/last-signal/pkg/story"
)

// CreateSessionRequest is the optional body of POST /v1/sessions.
type CreateSessionRequest struct {
	PlayerID string `json:"player_id,omitempty"`
}

type CreateSessionResponse struct {
	SessionID uuid.UUID       `json:"session_id"`
	Owner     string          `json:"owner"`
	Output    *session.Output `json:"output"`
}

// SessionSummary is returned by GET /v1/sessions/{id}.
type SessionSummary struct {
	SessionID uuid.UUID            `json:"session_id"`
	Owner     string               `json:"owner"`
	Mode      session.Mode         `json:"mode"`
	Location  string               `json:"location"`
	Tension   int                  `json:"tension"`
	Mood      string               `json:"mood"`
	Inventory []string             `json:"inventory"`
	Traits    []string             `json:"traits"`
	Vars      map[string]any       `json:"vars"`
	Choices   []session.ChoiceView `json:"choices"`
}

// Summarize describes a session for status displays.
func Summarize(sessionID uuid.UUID, owner string, sess *session.Session) SessionSummary {
	ns := sess.State()
	return SessionSummary{
		SessionID: sessionID,
		Owner:     owner,
		Mode:      sess.Mode(),
		Location:  ns.Location(),
		Tension:   ns.Tension,
		Mood:      ns.Mood,
		Inventory: ns.Inventory,
		Traits:    ns.Traits,
		Vars:      ns.Vars,
		Choices:   sess.View().Choices,
	}
}

// TurnQueue accepts turns for asynchronous play.
type TurnQueue interface {
	Enqueue(ctx context.Context, req *queue.Request) error
}

// QueuedTurnResponse is returned when a turn is accepted for a worker.
type QueuedTurnResponse struct {
	RequestID string    `json:"request_id"`
	SessionID uuid.UUID `json:"session_id"`
}

type SessionsHandler struct {
	turns  *turns.Processor
	queue  TurnQueue
	events http.Handler
	logger *slog.Logger
}

// NewSessionsHandler wires the session API. turnQueue may be nil, which
// disables ?async=true. The events route is enabled when the processor
// has a broadcaster.
func NewSessionsHandler(processor *turns.Processor, turnQueue TurnQueue, logger *slog.Logger) *SessionsHandler {
	h := &SessionsHandler{
		turns:  processor,
		queue:  turnQueue,
		logger: logger,
	}
	if b := processor.Broadcaster(); b != nil {
		h.events = NewEventsHandler(b, logger)
	}
	return h
}

// ServeHTTP handles HTTP requests for play sessions
// Routes:
// POST   /v1/sessions             - Start a new session
// GET    /v1/sessions/{id}        - Session summary
// DELETE /v1/sessions/{id}        - End a session
// POST   /v1/sessions/{id}/turn   - Play one turn (?async=true to queue it)
// GET    /v1/sessions/{id}/events - Event stream
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
			return
		}
		h.handleCreate(w, r)
		return
	}

	idStr, action, _ := strings.Cut(path, "/")
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", idStr, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, sessionID)
		case http.MethodDelete:
			h.handleDelete(w, r, sessionID)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
	case "turn":
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
			return
		}
		h.handleTurn(w, r, sessionID)
	case "events":
		if h.events == nil {
			writeError(w, h.logger, http.StatusNotFound, "Event streaming is not enabled")
			return
		}
		h.events.ServeHTTP(w, r)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid create session body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with optional 'player_id' field.")
		return
	}

	sessionID, owner, intro, err := h.turns.Create(r.Context(), strings.TrimSpace(req.PlayerID))
	if err != nil {
		logger.WithError(h.logger, err).Error("Failed to store new session")
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create session")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, CreateSessionResponse{
		SessionID: sessionID,
		Owner:     owner,
		Output:    intro,
	})
}

func (h *SessionsHandler) handleRead(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	sess, owner, err := h.turns.Open(r.Context(), sessionID, nil)
	if err != nil {
		h.writeTurnError(w, sessionID, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, Summarize(sessionID, owner, sess))
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	if err := h.turns.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("Failed to delete session", "error", err, "session_id", sessionID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) handleTurn(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid turn body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with one of 'choose_index', 'text' or 'command'.")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueueTurn(w, r, sessionID, req)
		return
	}

	holder := r.Header.Get(middleware.RequestIDHeader)
	if holder == "" {
		holder = uuid.NewString()
	}
	out, err := h.turns.Turn(r.Context(), sessionID, "api-"+holder, req)
	if err != nil {
		h.writeTurnError(w, sessionID, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

func (h *SessionsHandler) enqueueTurn(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID, turn chat.TurnRequest) {
	if h.queue == nil {
		writeError(w, h.logger, http.StatusNotImplemented, "Asynchronous turns are not enabled")
		return
	}

	ctx := r.Context()
	exists, err := h.turns.Exists(ctx, sessionID)
	if err != nil {
		h.writeTurnError(w, sessionID, err)
		return
	}
	if !exists {
		h.writeTurnError(w, sessionID, turns.ErrSessionNotFound)
		return
	}

	req := queue.NewRequest(sessionID, turn)
	if err := h.queue.Enqueue(ctx, req); err != nil {
		logger.WithError(logger.WithSessionID(h.logger, sessionID.String()), err).Error("Failed to enqueue turn")
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue turn")
		return
	}
	services.RecordQueuedTurn("enqueued")

	writeJSON(w, h.logger, http.StatusAccepted, QueuedTurnResponse{
		RequestID: req.RequestID,
		SessionID: sessionID,
	})
}

// writeTurnError maps processor errors to responses.
func (h *SessionsHandler) writeTurnError(w http.ResponseWriter, sessionID uuid.UUID, err error) {
	switch {
	case errors.Is(err, turns.ErrSessionNotFound):
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
	case errors.Is(err, turns.ErrSessionBusy):
		writeError(w, h.logger, http.StatusConflict, "Session is busy with another turn. Try again.")
	case errors.Is(err, story.ErrInvalidChoice):
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
	default:
		logger.WithError(logger.WithSessionID(h.logger, sessionID.String()), err).Error("Turn failed")
		writeError(w, h.logger, http.StatusInternalServerError, "Turn failed")
	}
}
