package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jthale/attune/backend/internal/handler/httperr"
	"github.com/jthale/attune/backend/internal/model/chat"
	"github.com/jthale/attune/backend/internal/relay"
	chatservice "github.com/jthale/attune/backend/internal/service/chat"
	"github.com/jthale/attune/backend/pkg/utils"
)

const writeTimeout = 10 * time.Second

// Handler serves the WebSocket join endpoint. Functionally equivalent to the
// SSE stream, plus inbound frames so a connected client can send messages and
// request suggestions over the same socket.
type Handler struct {
	coordinator *chatservice.Coordinator
	upgrader    websocket.Upgrader
}

// New creates the WebSocket handler.
func New(coordinator *chatservice.Coordinator) *Handler {
	return &Handler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket join route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/ws", h.handleSocket)
}

type inboundFrame struct {
	Type string `json:"type"` // "message" or "suggest"
	Text string `json:"text,omitempty"`
}

type outgoingFrame struct {
	Type       string        `json:"type"` // joined, message, suggestion, overrun, closed, error
	Role       chat.Role     `json:"role,omitempty"`
	Session    *chat.Session `json:"session,omitempty"`
	Message    *chat.Message `json:"message,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		utils.RespondError(w, http.StatusBadRequest, "identity query parameter is required")
		return
	}

	join, err := h.coordinator.JoinSession(r.Context(), sessionID, identity)
	if err != nil {
		utils.RespondError(w, httperr.Status(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.coordinator.Leave(r.Context(), sessionID, join.Stream)
		log.Printf("[ws] upgrade failed for session=%s: %v", sessionID, err)
		return
	}
	defer conn.Close()
	defer h.coordinator.Leave(context.Background(), sessionID, join.Stream)

	log.Printf("[ws] %s connected to session=%s as %s", identity, sessionID, join.Role)

	outbound := make(chan outgoingFrame, 16)
	readerDone := make(chan struct{})
	go h.readLoop(conn, sessionID, join.Role, outbound, readerDone)

	write := func(frame outgoingFrame) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("[ws] write failed for session=%s: %v", sessionID, err)
			return false
		}
		return true
	}

	sess := join.Session
	if !write(outgoingFrame{Type: "joined", Role: join.Role, Session: &sess}) {
		return
	}
	for i := range join.Transcript {
		if !write(outgoingFrame{Type: "message", Message: &join.Transcript[i]}) {
			return
		}
	}

	for {
		select {
		case <-readerDone:
			return
		case frame := <-outbound:
			if !write(frame) {
				return
			}
		case ev, open := <-join.Stream.Events():
			if !open {
				write(outgoingFrame{Type: "closed"})
				return
			}
			switch ev.Kind {
			case relay.EventOverrun:
				write(outgoingFrame{Type: "overrun"})
				return
			case relay.EventMessage:
				msg := ev.Message
				if !write(outgoingFrame{Type: "message", Message: &msg}) {
					return
				}
			}
		}
	}
}

// readLoop turns inbound frames into coordinator calls. Results go through
// the outbound channel so the connection has a single writer.
func (h *Handler) readLoop(conn *websocket.Conn, sessionID string, role chat.Role, outbound chan<- outgoingFrame, done chan<- struct{}) {
	defer close(done)

	// Non-blocking: if the write side is gone the frame is dropped rather
	// than wedging this goroutine.
	send := func(frame outgoingFrame) {
		select {
		case outbound <- frame:
		default:
		}
	}

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read failed for session=%s: %v", sessionID, err)
			}
			return
		}

		switch frame.Type {
		case "message":
			if _, err := h.coordinator.SendMessage(context.Background(), sessionID, role, frame.Text); err != nil {
				send(outgoingFrame{Type: "error", Error: err.Error()})
			}
			// Delivery happens via the subscription, sender included.
		case "suggest":
			suggestion, err := h.coordinator.RequestSuggestion(context.Background(), sessionID, role)
			if err != nil {
				send(outgoingFrame{Type: "error", Error: "suggestion unavailable"})
				continue
			}
			send(outgoingFrame{Type: "suggestion", Suggestion: suggestion})
		default:
			send(outgoingFrame{Type: "error", Error: "unknown frame type"})
		}
	}
}
