package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(s *Server, wsHandler http.HandlerFunc, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(jwtSecret))
		r.Post("/sessions", s.CreateSession)
		r.Post("/sessions/{sessionID}/join", s.JoinSession)
		r.Get("/sessions/{sessionID}", s.GetSession)
		r.Put("/sessions/{sessionID}/state", s.UpdateState)
		r.Post("/sessions/{sessionID}/leave", s.LeaveSession)
	})
	return r
}
