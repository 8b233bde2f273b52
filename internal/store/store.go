package store

import (
	"context"
	"errors"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
)

var ErrNotFound = errors.New("session not found")

// Gateway is the durable load/save boundary for session documents. The
// durable copy is the source of truth whenever a session is materialized
// in memory; single-document atomicity is all the engine assumes of it.
type Gateway interface {
	Load(ctx context.Context, sessionID string) (engine.State, error)
	Save(ctx context.Context, state engine.State) error
}
