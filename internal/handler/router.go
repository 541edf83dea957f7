package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	sessionHandler "github.com/jthale/attune/backend/internal/handler/session"
	"github.com/jthale/attune/backend/internal/handler/stream"
	"github.com/jthale/attune/backend/internal/handler/ws"
	middlewarePkg "github.com/jthale/attune/backend/internal/middleware"
	chatservice "github.com/jthale/attune/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to the coordinator.
func NewRouter(coordinator *chatservice.Coordinator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	restHandler := sessionHandler.New(coordinator)
	streamHandler := stream.New(coordinator)
	wsHandler := ws.New(coordinator)

	r.Route("/api", func(api chi.Router) {
		restHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
