package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
)

const sessionKeyPrefix = "session:"

// Redis keeps session documents as JSON values under session:<id>. A TTL
// of zero keeps documents until explicitly overwritten.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Load(ctx context.Context, sessionID string) (engine.State, error) {
	doc, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return engine.State{}, ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var s engine.State
	if err := json.Unmarshal(doc, &s); err != nil {
		return engine.State{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return s, nil
}

func (r *Redis) Save(ctx context.Context, state engine.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+state.SessionID, doc, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}
