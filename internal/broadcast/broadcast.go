package broadcast

import "github.com/davidalsh/multiplayer-backend/internal/engine"

// Outbound event names on the wire.
const (
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventGameStateUpdate = "game_state_update"
	EventError           = "error"
)

// Envelope is one outbound event for a session's subscribers.
type Envelope struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"sessionId"`
	UserID      string         `json:"userId,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	State       *engine.State  `json:"state,omitempty"`
	LastAction  *engine.Action `json:"lastAction,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Group fans one session's events out to its subscribed connections.
// A Group is owned by a single session goroutine and must only be touched
// from that goroutine; membership changes are therefore atomic with
// respect to any publish, and events reach subscribers in commit order.
type Group struct {
	subs map[string]chan Envelope
}

func NewGroup() *Group {
	return &Group{subs: make(map[string]chan Envelope)}
}

func (g *Group) Subscribe(connID string, out chan Envelope) {
	g.subs[connID] = out
}

func (g *Group) Unsubscribe(connID string) {
	delete(g.subs, connID)
}

// Send delivers an event to one subscriber only (errors, join snapshots).
func (g *Group) Send(connID string, ev Envelope) {
	ch, ok := g.subs[connID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		close(ch)
		delete(g.subs, connID)
	}
}

// Publish delivers an event to every subscriber. A subscriber whose
// channel is full is dropped rather than allowed to stall the session.
func (g *Group) Publish(ev Envelope) {
	for id, ch := range g.subs {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(g.subs, id)
		}
	}
}

func (g *Group) Len() int { return len(g.subs) }

// Close tells every subscriber no more events are coming.
func (g *Group) Close() {
	for id, ch := range g.subs {
		close(ch)
		delete(g.subs, id)
	}
}
