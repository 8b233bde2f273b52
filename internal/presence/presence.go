package presence

import "sync"

type Binding struct {
	SessionID string
	UserID    string
}

// Tracker maps each open transport connection to at most one session/user
// pair. The transport consults it on disconnect to learn which user a
// closing connection belonged to, and routes the resulting Disconnect
// through the same serialized session path as every other mutation.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]Binding
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]Binding)}
}

// Bind maps connID to a session/user pair, replacing any existing mapping.
// The previous binding is returned so the caller can issue an implicit
// leave on the old session; a connection is never present in two sessions
// at once.
func (t *Tracker) Bind(connID, sessionID, userID string) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, had := t.conns[connID]
	t.conns[connID] = Binding{SessionID: sessionID, UserID: userID}
	return prev, had
}

func (t *Tracker) Lookup(connID string) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.conns[connID]
	return b, ok
}

func (t *Tracker) Unbind(connID string) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.conns[connID]
	delete(t.conns, connID)
	return b, ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
