package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/last-signal/internal/storage"
)

// SaveSummary describes one slot without its snapshot.
type SaveSummary struct {
	Slot      int       `json:"slot"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	PlayTime  int64     `json:"play_time"`
	Location  string    `json:"location"`
}

func SummarizeSave(d *storage.SaveData) SaveSummary {
	return SaveSummary{
		Slot:      d.Slot,
		Version:   d.Version,
		Timestamp: d.Timestamp,
		PlayTime:  d.PlayTime,
		Location:  d.Location,
	}
}

type ExportResponse struct {
	Code string `json:"code"`
}

type ImportRequest struct {
	Code string `json:"code"`
}

type SavesHandler struct {
	store  storage.SaveStore
	logger *slog.Logger
}

func NewSavesHandler(store storage.SaveStore, logger *slog.Logger) *SavesHandler {
	return &SavesHandler{store: store, logger: logger}
}

// ServeHTTP handles HTTP requests for save slots
// Routes:
// GET    /v1/saves?owner={owner}              - List slots, newest first
// DELETE /v1/saves/{owner}/{slot}             - Delete a slot
// GET    /v1/saves/{owner}/{slot}/export      - Export a slot as a code
// POST   /v1/saves/{owner}/{slot}/import      - Import a code into a slot
func (h *SavesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/saves"), "/")
	if path == "" {
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
			return
		}
		h.handleList(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts) > 3 {
		writeError(w, h.logger, http.StatusNotFound, "Not found")
		return
	}
	owner := parts[0]
	slot, err := strconv.Atoi(parts[1])
	if err != nil || slot < 1 {
		writeError(w, h.logger, http.StatusBadRequest, "Slot must be a positive number")
		return
	}

	action := ""
	if len(parts) == 3 {
		action = parts[2]
	}
	switch {
	case action == "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, owner, slot)
	case action == "export" && r.Method == http.MethodGet:
		h.handleExport(w, r, owner, slot)
	case action == "import" && r.Method == http.MethodPost:
		h.handleImport(w, r, owner, slot)
	case action == "" || action == "export" || action == "import":
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func (h *SavesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Query parameter 'owner' is required")
		return
	}

	saves, err := h.store.ListSlots(r.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to list saves", "error", err, "owner", owner)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list saves")
		return
	}

	summaries := make([]SaveSummary, 0, len(saves))
	for _, d := range saves {
		summaries = append(summaries, SummarizeSave(d))
	}
	writeJSON(w, h.logger, http.StatusOK, summaries)
}

func (h *SavesHandler) handleDelete(w http.ResponseWriter, r *http.Request, owner string, slot int) {
	if err := h.store.DeleteSlot(r.Context(), owner, slot); err != nil {
		h.logger.Error("Failed to delete save", "error", err, "owner", owner, "slot", slot)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete save")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SavesHandler) handleExport(w http.ResponseWriter, r *http.Request, owner string, slot int) {
	d, err := h.store.LoadSlot(r.Context(), owner, slot)
	if err != nil {
		if errors.Is(err, storage.ErrIncompatibleSave) || errors.Is(err, storage.ErrInvalidSave) {
			writeError(w, h.logger, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to load save", "error", err, "owner", owner, "slot", slot)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load save")
		return
	}
	if d == nil {
		writeError(w, h.logger, http.StatusNotFound, "No save game found.")
		return
	}

	code, err := storage.Export(d)
	if err != nil {
		h.logger.Error("Failed to export save", "error", err, "owner", owner, "slot", slot)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to export save")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ExportResponse{Code: code})
}

func (h *SavesHandler) handleImport(w http.ResponseWriter, r *http.Request, owner string, slot int) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'code' field.")
		return
	}

	d, err := storage.Import(req.Code)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, storage.ErrIncompatibleSave) {
			status = http.StatusConflict
		}
		writeError(w, h.logger, status, err.Error())
		return
	}
	d.Owner = owner
	d.Slot = slot
	d.Timestamp = time.Now().UTC()

	if err := h.store.SaveSlot(r.Context(), d); err != nil {
		h.logger.Error("Failed to import save", "error", err, "owner", owner, "slot", slot)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to import save")
		return
	}
	h.logger.Info("Save imported", "owner", owner, "slot", slot, "location", d.Location)
	writeJSON(w, h.logger, http.StatusCreated, SummarizeSave(d))
}
