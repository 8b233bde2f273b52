package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
)

// Memory keeps session documents in a process-local map. Documents go
// through a JSON round trip on save/load so tests observe the same type
// normalization the real stores produce.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Load(ctx context.Context, sessionID string) (engine.State, error) {
	m.mu.RLock()
	doc, ok := m.docs[sessionID]
	m.mu.RUnlock()
	if !ok {
		return engine.State{}, ErrNotFound
	}
	var s engine.State
	if err := json.Unmarshal(doc, &s); err != nil {
		return engine.State{}, err
	}
	return s, nil
}

func (m *Memory) Save(ctx context.Context, state engine.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[state.SessionID] = doc
	m.mu.Unlock()
	return nil
}
