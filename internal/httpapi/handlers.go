package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
	"github.com/davidalsh/multiplayer-backend/internal/hub"
	"github.com/davidalsh/multiplayer-backend/internal/session"
)

// Server is the request/response surface over the session layer. Every
// mutation goes through the same per-session queue as websocket traffic,
// so a PUT can never clobber a concurrent in-game action.
type Server struct {
	hub *hub.Hub
	log *zap.Logger
}

func NewServer(h *hub.Hub, log *zap.Logger) *Server {
	return &Server{hub: h, log: log}
}

func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}
	var body struct {
		GameID string `json:"gameId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.GameID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing required fields"})
		return
	}

	sessionID := uuid.NewString()
	sess, err := s.hub.EnsureSession(r.Context(), sessionID, body.GameID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	reply := make(chan session.Result, 1)
	if !sess.Submit(session.Join{UserID: ident.UserID, DisplayName: ident.DisplayName, Reply: reply}) {
		s.respondError(w, session.ErrClosed)
		return
	}
	res := <-reply
	if res.Err != nil {
		s.respondError(w, res.Err)
		return
	}

	s.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("game_id", body.GameID),
		zap.String("user_id", ident.UserID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "game session created successfully",
		"sessionId":   sessionID,
		"gameSession": res.State,
	})
}

func (s *Server) JoinSession(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	reply := make(chan session.Result, 1)
	err := s.hub.SubmitExisting(r.Context(), sessionID, session.Join{
		UserID:      ident.UserID,
		DisplayName: ident.DisplayName,
		Reply:       reply,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	res := <-reply
	if res.Err != nil {
		s.respondError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "joined game session successfully",
		"gameSession": res.State,
	})
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	reply := make(chan engine.State, 1)
	if err := s.hub.SubmitExisting(r.Context(), sessionID, session.Snapshot{Reply: reply}); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameSession": <-reply})
}

func (s *Server) UpdateState(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	var body struct {
		GameState map[string]any `json:"gameState"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.GameState) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing required fields"})
		return
	}

	reply := make(chan session.Result, 1)
	err := s.hub.SubmitExisting(r.Context(), sessionID, session.Apply{
		Action: engine.Action{
			Kind:         "state_update",
			SessionID:    sessionID,
			ActingUserID: ident.UserID,
			Payload:      body.GameState,
		},
		Reply: reply,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	res := <-reply
	if res.Err != nil {
		s.respondError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "game state updated successfully",
		"gameSession": res.State,
	})
}

func (s *Server) LeaveSession(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "authentication required"})
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	reply := make(chan session.Result, 1)
	err := s.hub.SubmitExisting(r.Context(), sessionID, session.Leave{
		UserID: ident.UserID,
		Reply:  reply,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	res := <-reply
	if res.Err != nil {
		s.respondError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "left game session successfully",
		"gameSession": res.State,
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hub.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "game session not found"})
	case errors.Is(err, engine.ErrNotYourTurn):
		writeJSON(w, http.StatusConflict, map[string]string{"message": "not your turn"})
	case errors.Is(err, session.ErrDegraded):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "session temporarily unavailable"})
	case errors.Is(err, session.ErrPersistence), errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
	default:
		s.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
