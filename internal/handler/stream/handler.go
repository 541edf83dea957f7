package stream

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jthale/attune/backend/internal/handler/httperr"
	"github.com/jthale/attune/backend/internal/relay"
	chatservice "github.com/jthale/attune/backend/internal/service/chat"
	"github.com/jthale/attune/backend/pkg/utils"
)

// Handler serves the SSE join endpoint: role assignment, transcript replay,
// then live messages in sequence order until the session closes or the
// client disconnects.
type Handler struct {
	coordinator *chatservice.Coordinator
}

// New creates the stream handler.
func New(coordinator *chatservice.Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterRoutes mounts the SSE join route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}", h.handleJoin)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		utils.RespondError(w, http.StatusBadRequest, "identity query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	join, err := h.coordinator.JoinSession(r.Context(), sessionID, identity)
	if err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}
	defer h.coordinator.Leave(r.Context(), sessionID, join.Stream)

	utils.SetupSSEHeaders(w)
	log.Printf("[sse] %s streaming session=%s as %s", identity, sessionID, join.Role)

	utils.SendSSEEvent(w, flusher, "joined", map[string]any{
		"role":    join.Role,
		"session": join.Session,
	})

	// Replayed transcript is strictly older than anything the live stream
	// delivers; the coordinator takes both under the session lock.
	for _, msg := range join.Transcript {
		utils.SendSSEEvent(w, flusher, "message", msg)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] client left session=%s role=%s", sessionID, join.Role)
			return
		case ev, open := <-join.Stream.Events():
			if !open {
				utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": sessionID})
				return
			}
			switch ev.Kind {
			case relay.EventOverrun:
				// Informational: the client fell behind and must reconnect.
				utils.SendSSEEvent(w, flusher, "overrun", map[string]string{"sessionId": sessionID})
				log.Printf("[sse] overran subscriber on session=%s role=%s", sessionID, join.Role)
				return
			case relay.EventMessage:
				utils.SendSSEEvent(w, flusher, "message", ev.Message)
			}
		}
	}
}
