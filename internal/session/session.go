package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/davidalsh/multiplayer-backend/internal/broadcast"
	"github.com/davidalsh/multiplayer-backend/internal/engine"
	"github.com/davidalsh/multiplayer-backend/internal/store"
)

var (
	// ErrDegraded rejects mutations after persistence retries are exhausted,
	// until a later save reconciles the in-memory state with the store.
	ErrDegraded = errors.New("session degraded")
	// ErrPersistence reports a commit whose durable save failed. The
	// in-memory mutation is applied but not durably confirmed.
	ErrPersistence = errors.New("persistence failure")
	// ErrClosed reports a request that raced the session's retirement.
	ErrClosed = errors.New("session closed")
)

type Msg interface{ isSessionMsg() }

// Join marks a user active (adding them to the roster if new) and, when
// Outbox is set, subscribes the connection to this session's broadcasts.
// REST joins pass a nil Outbox.
type Join struct {
	ConnID      string
	UserID      string
	DisplayName string
	Outbox      chan broadcast.Envelope
	Reply       chan Result
}

type Leave struct {
	ConnID string
	UserID string
	Reply  chan Result
}

// Disconnect is issued by the presence tracker when a transport connection
// closes without an explicit leave.
type Disconnect struct {
	ConnID string
	UserID string
	Reply  chan Result
}

type Apply struct {
	Action engine.Action
	Reply  chan Result
}

// Snapshot reads the current state. It runs behind the same queue as
// mutations, so the reply reflects every previously committed request.
type Snapshot struct {
	Reply chan engine.State
}

type Shutdown struct{}

type reconcileTick struct{}

type idleTick struct{ gen int }

func (Join) isSessionMsg()          {}
func (Leave) isSessionMsg()         {}
func (Disconnect) isSessionMsg()    {}
func (Apply) isSessionMsg()         {}
func (Snapshot) isSessionMsg()      {}
func (Shutdown) isSessionMsg()      {}
func (reconcileTick) isSessionMsg() {}
func (idleTick) isSessionMsg()      {}

type Result struct {
	State engine.State
	Err   error
}

// Remover is how a session asks its registry to forget it once idle.
type Remover interface {
	Remove(sessionID string)
}

type Config struct {
	PersistTimeout    time.Duration
	PersistRetries    uint64
	ReconcileInterval time.Duration
	IdleTimeout       time.Duration
}

// Session is the exclusive owner of one session's state. All reads and
// mutations flow through its inbox and are processed strictly one at a
// time in arrival order; nothing else may touch the state. That ordering
// is what turns concurrent read-modify-write traffic into a serializable
// history per session. Sessions for different ids run independently.
type Session struct {
	id      string
	inbox   chan Msg
	state   engine.State
	group   *broadcast.Group
	gateway store.Gateway
	remover Remover
	cfg     Config
	log     *zap.Logger

	degraded bool
	idleGen  int

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, initial engine.State, gw store.Gateway, remover Remover, cfg Config, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:      initial.SessionID,
		inbox:   make(chan Msg, 64),
		state:   initial,
		group:   broadcast.NewGroup(),
		gateway: gw,
		remover: remover,
		cfg:     cfg,
		log:     log.With(zap.String("session_id", initial.SessionID)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Submit delivers a request unless the session has already shut down. A
// false return means the caller should re-resolve through the registry;
// the session may have retired while the caller held the pointer.
func (s *Session) Submit(m Msg) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	s.armIdle() // no subscribers yet
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Leave:
				s.handleDeactivate(msg.ConnID, msg.UserID, msg.Reply)
			case Disconnect:
				s.handleDeactivate(msg.ConnID, msg.UserID, msg.Reply)
			case Apply:
				s.handleApply(msg)
			case Snapshot:
				msg.Reply <- s.state
			case reconcileTick:
				s.reconcile()
			case idleTick:
				if msg.gen == s.idleGen && s.group.Len() == 0 {
					s.log.Info("retiring idle session")
					s.remover.Remove(s.id)
					s.shutdown()
					return
				}
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	if s.degraded {
		sendResult(msg.Reply, Result{State: s.state, Err: ErrDegraded})
		return
	}
	next := engine.Join(s.state, msg.UserID, msg.DisplayName, time.Now())
	if err := s.commit(next); err != nil {
		sendResult(msg.Reply, Result{State: s.state, Err: err})
		return
	}
	if msg.Outbox != nil {
		// Subscribe before publishing so the join broadcast reaches the
		// subscriber it is about.
		s.group.Subscribe(msg.ConnID, msg.Outbox)
		s.idleGen++ // invalidate any pending idle fire
	}
	st := s.state
	s.group.Publish(broadcast.Envelope{
		Type:        broadcast.EventUserJoined,
		SessionID:   s.id,
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		State:       &st,
	})
	if msg.Outbox != nil {
		s.group.Send(msg.ConnID, broadcast.Envelope{
			Type:      broadcast.EventGameStateUpdate,
			SessionID: s.id,
			State:     &st,
		})
	}
	sendResult(msg.Reply, Result{State: st})
}

func (s *Session) handleDeactivate(connID, userID string, reply chan Result) {
	if connID != "" {
		s.group.Unsubscribe(connID)
		if s.group.Len() == 0 {
			s.armIdle()
		}
	}
	if !s.state.HasParticipant(userID) {
		sendResult(reply, Result{State: s.state})
		return
	}
	if s.degraded {
		sendResult(reply, Result{State: s.state, Err: ErrDegraded})
		return
	}
	next := engine.Deactivate(s.state, userID, time.Now())
	if err := s.commit(next); err != nil {
		sendResult(reply, Result{State: s.state, Err: err})
		return
	}
	st := s.state
	s.group.Publish(broadcast.Envelope{
		Type:        broadcast.EventUserLeft,
		SessionID:   s.id,
		UserID:      userID,
		DisplayName: st.ParticipantName(userID),
		State:       &st,
	})
	sendResult(reply, Result{State: st})
}

func (s *Session) handleApply(msg Apply) {
	if s.degraded {
		sendResult(msg.Reply, Result{State: s.state, Err: ErrDegraded})
		return
	}
	a := msg.Action
	if engine.RequiresTurn(a.Kind) && a.ActingUserID != s.state.CurrentTurnUserID {
		sendResult(msg.Reply, Result{State: s.state, Err: engine.ErrNotYourTurn})
		return
	}
	next := engine.Apply(s.state, a, time.Now())
	if err := s.commit(next); err != nil {
		sendResult(msg.Reply, Result{State: s.state, Err: err})
		return
	}
	st := s.state
	s.group.Publish(broadcast.Envelope{
		Type:       broadcast.EventGameStateUpdate,
		SessionID:  s.id,
		State:      &st,
		LastAction: &a,
	})
	sendResult(msg.Reply, Result{State: st})
}

// commit installs next as the authoritative state, then persists it with
// bounded retry. On persist failure the in-memory state is kept (applied
// but not durably confirmed) and the session goes degraded; broadcasts are
// withheld until a commit is durably confirmed.
func (s *Session) commit(next engine.State) error {
	s.state = next
	if err := s.persist(); err != nil {
		s.degraded = true
		s.armReconcile()
		s.log.Warn("persist failed, session degraded", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Session) persist() error {
	op := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PersistTimeout)
		defer cancel()
		return s.gateway.Save(ctx, s.state)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.PersistRetries)
	return backoff.Retry(op, backoff.WithContext(bo, s.ctx))
}

func (s *Session) reconcile() {
	if !s.degraded {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PersistTimeout)
	err := s.gateway.Save(ctx, s.state)
	cancel()
	if err != nil {
		s.armReconcile()
		return
	}
	s.degraded = false
	s.log.Info("session reconciled with store")
}

func (s *Session) armReconcile() {
	interval := s.cfg.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	time.AfterFunc(interval, func() {
		select {
		case s.inbox <- reconcileTick{}:
		case <-s.ctx.Done():
		}
	})
}

// armIdle schedules retirement. The generation counter drops stale fires:
// a join between arming and firing bumps the generation so the pending
// fire is ignored.
func (s *Session) armIdle() {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	s.idleGen++
	gen := s.idleGen
	time.AfterFunc(s.cfg.IdleTimeout, func() {
		select {
		case s.inbox <- idleTick{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

// shutdown closes subscriber channels and fails any queued requests so no
// caller is left waiting on a reply.
func (s *Session) shutdown() {
	s.group.Close()
	s.cancel()
	for {
		select {
		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				sendResult(msg.Reply, Result{Err: ErrClosed})
			case Leave:
				sendResult(msg.Reply, Result{Err: ErrClosed})
			case Disconnect:
				sendResult(msg.Reply, Result{Err: ErrClosed})
			case Apply:
				sendResult(msg.Reply, Result{Err: ErrClosed})
			case Snapshot:
				msg.Reply <- s.state
			}
		default:
			return
		}
	}
}

func sendResult(ch chan<- Result, r Result) {
	if ch == nil {
		return
	}
	ch <- r
}
