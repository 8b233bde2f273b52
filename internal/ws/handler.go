package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidalsh/multiplayer-backend/internal/broadcast"
	"github.com/davidalsh/multiplayer-backend/internal/engine"
	"github.com/davidalsh/multiplayer-backend/internal/hub"
	"github.com/davidalsh/multiplayer-backend/internal/presence"
	"github.com/davidalsh/multiplayer-backend/internal/session"
	"github.com/davidalsh/multiplayer-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler upgrades a connection and pumps events between it and the
// session layer. One writer goroutine drains the outbox the session
// broadcasts into; the reader loop parses client messages and routes them
// through the hub. Errors go to this connection only and never interrupt
// the other subscribers.
func Handler(h *hub.Hub, tracker *presence.Tracker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan broadcast.Envelope, 8)

		// The presence mapping is the only way to know which user this
		// connection belonged to once the transport closes.
		defer func() {
			if b, ok := tracker.Unbind(connID); ok {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if sess, err := h.ResolveExisting(ctx, b.SessionID); err == nil {
					sess.Submit(session.Disconnect{ConnID: connID, UserID: b.UserID})
				}
			}
			log.Debug("connection closed", zap.String("conn_id", connID))
		}()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case ev, ok := <-out:
					if !ok {
						return
					}
					payload, _ := json.Marshal(ev)
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				case <-writeCtx.Done():
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}
			if err := cm.Validate(); err != nil {
				writeError(r.Context(), conn, err.Error())
				continue
			}

			switch cm.Type {
			case types.MsgJoinGame:
				handleJoin(r.Context(), h, tracker, conn, connID, out, cm)
			case types.MsgLeaveGame:
				handleLeave(r.Context(), h, tracker, conn, connID, cm)
			case types.MsgGameAction:
				handleAction(r.Context(), h, conn, cm)
			}
		}
	}
}

func handleJoin(ctx context.Context, h *hub.Hub, tracker *presence.Tracker,
	conn *websocket.Conn, connID string, out chan broadcast.Envelope, cm types.ClientMessage) {

	sess, err := h.ResolveExisting(ctx, cm.SessionID)
	if err != nil {
		writeError(ctx, conn, err.Error())
		return
	}

	// A connection hopping sessions first leaves the old one.
	if prev, had := tracker.Bind(connID, cm.SessionID, cm.UserID); had && prev.SessionID != cm.SessionID {
		if old, err := h.ResolveExisting(ctx, prev.SessionID); err == nil {
			old.Submit(session.Leave{ConnID: connID, UserID: prev.UserID})
		}
	}

	reply := make(chan session.Result, 1)
	if !submit(ctx, h, sess, cm.SessionID, session.Join{
		ConnID:      connID,
		UserID:      cm.UserID,
		DisplayName: cm.DisplayName,
		Outbox:      out,
		Reply:       reply,
	}) {
		writeError(ctx, conn, session.ErrClosed.Error())
		return
	}
	if res := <-reply; res.Err != nil {
		writeError(ctx, conn, res.Err.Error())
	}
}

func handleLeave(ctx context.Context, h *hub.Hub, tracker *presence.Tracker,
	conn *websocket.Conn, connID string, cm types.ClientMessage) {

	sess, err := h.ResolveExisting(ctx, cm.SessionID)
	if err != nil {
		writeError(ctx, conn, err.Error())
		return
	}
	reply := make(chan session.Result, 1)
	if !submit(ctx, h, sess, cm.SessionID, session.Leave{
		ConnID: connID,
		UserID: cm.UserID,
		Reply:  reply,
	}) {
		writeError(ctx, conn, session.ErrClosed.Error())
		return
	}
	res := <-reply
	tracker.Unbind(connID)
	if res.Err != nil {
		writeError(ctx, conn, res.Err.Error())
	}
}

func handleAction(ctx context.Context, h *hub.Hub, conn *websocket.Conn, cm types.ClientMessage) {
	sess, err := h.ResolveExisting(ctx, cm.SessionID)
	if err != nil {
		writeError(ctx, conn, err.Error())
		return
	}
	reply := make(chan session.Result, 1)
	if !submit(ctx, h, sess, cm.SessionID, session.Apply{
		Action: engine.Action{
			Kind:         cm.Kind,
			SessionID:    cm.SessionID,
			ActingUserID: cm.UserID,
			Payload:      cm.Payload,
		},
		Reply: reply,
	}) {
		writeError(ctx, conn, session.ErrClosed.Error())
		return
	}
	if res := <-reply; res.Err != nil {
		writeError(ctx, conn, res.Err.Error())
	}
}

// submit delivers m, re-resolving once if the session retired between
// lookup and delivery.
func submit(ctx context.Context, h *hub.Hub, sess *session.Session, sessionID string, m session.Msg) bool {
	if sess.Submit(m) {
		return true
	}
	sess, err := h.ResolveExisting(ctx, sessionID)
	if err != nil {
		return false
	}
	return sess.Submit(m)
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(broadcast.Envelope{Type: broadcast.EventError, Error: msg})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
