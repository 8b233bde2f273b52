package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
	"github.com/davidalsh/multiplayer-backend/internal/session"
	"github.com/davidalsh/multiplayer-backend/internal/store"
)

var ErrSessionNotFound = errors.New("game session not found")

type HubMsg interface{ isHubMsg() }

// Ensure resolves a session, materializing a fresh empty one if the store
// has no record. Used by the create path.
type Ensure struct {
	SessionID string
	GameID    string
	Reply     chan Reply
}

// Lookup resolves an existing session: a live one, or one loaded from the
// store. Replies ErrSessionNotFound when neither exists.
type Lookup struct {
	SessionID string
	Reply     chan Reply
}

type Remove struct{ SessionID string }

type ShutdownHub struct{}

// loaded carries a finished store load back into the hub loop.
type loaded struct {
	SessionID string
	State     engine.State
	Err       error
}

func (Ensure) isHubMsg()      {}
func (Lookup) isHubMsg()      {}
func (Remove) isHubMsg()      {}
func (ShutdownHub) isHubMsg() {}
func (loaded) isHubMsg()      {}

type Reply struct {
	Sess *session.Session
	Err  error
}

type waiter struct {
	reply     chan Reply
	mustExist bool
	gameID    string
}

// Hub owns the process-wide sessionID -> session table. All table access
// happens on the hub goroutine, so at most one live session exists per id
// and two callers can never race to load the same durable record. Store
// loads run on their own goroutines and report back via the inbox, so one
// session's load never stalls another's traffic.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	pending  map[string][]waiter
	gateway  store.Gateway
	cfg      session.Config
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, gw store.Gateway, cfg session.Config, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		pending:  make(map[string][]waiter),
		gateway:  gw,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Remove implements session.Remover for idle self-retirement.
func (h *Hub) Remove(sessionID string) {
	select {
	case h.inbox <- Remove{SessionID: sessionID}:
	case <-h.ctx.Done():
	}
}

// ResolveExisting is the Lookup round trip used by transport handlers.
func (h *Hub) ResolveExisting(ctx context.Context, sessionID string) (*session.Session, error) {
	reply := make(chan Reply, 1)
	select {
	case h.inbox <- Lookup{SessionID: sessionID, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Sess, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnsureSession is the Ensure round trip used by the create path.
func (h *Hub) EnsureSession(ctx context.Context, sessionID, gameID string) (*session.Session, error) {
	reply := make(chan Reply, 1)
	select {
	case h.inbox <- Ensure{SessionID: sessionID, GameID: gameID, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Sess, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitExisting resolves sessionID and delivers m, re-resolving once if
// the session retires between lookup and delivery.
func (h *Hub) SubmitExisting(ctx context.Context, sessionID string, m session.Msg) error {
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := h.ResolveExisting(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Submit(m) {
			return nil
		}
	}
	return session.ErrClosed
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Ensure:
				if sess := h.sessions[msg.SessionID]; sess != nil {
					msg.Reply <- Reply{Sess: sess}
					break
				}
				h.enqueueLoad(msg.SessionID, waiter{reply: msg.Reply, gameID: msg.GameID})

			case Lookup:
				if sess := h.sessions[msg.SessionID]; sess != nil {
					msg.Reply <- Reply{Sess: sess}
					break
				}
				h.enqueueLoad(msg.SessionID, waiter{reply: msg.Reply, mustExist: true})

			case loaded:
				h.install(msg)

			case Remove:
				delete(h.sessions, msg.SessionID)

			case ShutdownHub:
				for _, sess := range h.sessions {
					sess.Submit(session.Shutdown{})
				}
				clear(h.sessions)
				h.cancel()
			}
		}
	}
}

// enqueueLoad parks the waiter and starts the store load for its session
// unless one is already in flight.
func (h *Hub) enqueueLoad(sessionID string, w waiter) {
	if ws, ok := h.pending[sessionID]; ok {
		h.pending[sessionID] = append(ws, w)
		return
	}
	h.pending[sessionID] = []waiter{w}
	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, h.cfg.PersistTimeout)
		st, err := h.gateway.Load(ctx, sessionID)
		cancel()
		select {
		case h.inbox <- loaded{SessionID: sessionID, State: st, Err: err}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) install(msg loaded) {
	waiters := h.pending[msg.SessionID]
	delete(h.pending, msg.SessionID)

	// A session may have been installed while the load was in flight
	// (retired and immediately re-created); reuse it.
	if sess := h.sessions[msg.SessionID]; sess != nil {
		for _, w := range waiters {
			w.reply <- Reply{Sess: sess}
		}
		return
	}

	switch {
	case msg.Err == nil:
		sess := session.New(h.ctx, msg.State, h.gateway, h, h.cfg, h.log)
		h.sessions[msg.SessionID] = sess
		for _, w := range waiters {
			w.reply <- Reply{Sess: sess}
		}

	case errors.Is(msg.Err, store.ErrNotFound):
		var sess *session.Session
		for _, w := range waiters {
			if w.mustExist {
				w.reply <- Reply{Err: ErrSessionNotFound}
				continue
			}
			if sess == nil {
				fresh := engine.NewState(msg.SessionID, w.gameID, time.Now())
				sess = session.New(h.ctx, fresh, h.gateway, h, h.cfg, h.log)
				h.sessions[msg.SessionID] = sess
			}
			w.reply <- Reply{Sess: sess}
		}

	default:
		h.log.Error("session load failed",
			zap.String("session_id", msg.SessionID), zap.Error(msg.Err))
		err := fmt.Errorf("%w: %v", session.ErrPersistence, msg.Err)
		for _, w := range waiters {
			w.reply <- Reply{Err: err}
		}
	}
}
