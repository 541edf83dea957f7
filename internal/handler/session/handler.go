package session

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jthale/attune/backend/internal/handler/httperr"
	chatservice "github.com/jthale/attune/backend/internal/service/chat"
	"github.com/jthale/attune/backend/pkg/utils"
)

// Handler exposes the session REST surface: create, send, suggest, close.
// Live delivery lives in the stream and ws handlers.
type Handler struct {
	coordinator *chatservice.Coordinator
}

// New creates the session handler.
func New(coordinator *chatservice.Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/create-session", h.handleCreate)
	r.Post("/session/{sessionID}/message", h.handleMessage)
	r.Post("/session/{sessionID}/suggest", h.handleSuggest)
	r.Post("/session/{sessionID}/close", h.handleClose)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.coordinator.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID,
		"session":   sess,
	})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Identity string `json:"identity"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Identity == "" {
		utils.RespondError(w, http.StatusBadRequest, "identity is required")
		return
	}

	// The sender role comes from the participant table, never the payload.
	role, err := h.coordinator.ResolveRole(r.Context(), sessionID, payload.Identity)
	if err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}

	msg, err := h.coordinator.SendMessage(r.Context(), sessionID, role, payload.Text)
	if err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Identity == "" {
		utils.RespondError(w, http.StatusBadRequest, "identity is required")
		return
	}

	role, err := h.coordinator.ResolveRole(r.Context(), sessionID, payload.Identity)
	if err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}

	suggestion, err := h.coordinator.RequestSuggestion(r.Context(), sessionID, role)
	if err != nil {
		utils.RespondError(w, httperr.Status(err), "suggestion unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"suggestion": suggestion})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.coordinator.CloseSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
