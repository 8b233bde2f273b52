package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
)

// sessionRecord mirrors engine.State in the game_sessions table; session_id
// is the natural key and the full document is kept as jsonb.
type sessionRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"uniqueIndex;size:64"`
	GameID    string `gorm:"index;size:64"`
	Document  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRecord) TableName() string { return "game_sessions" }

type Postgres struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate game_sessions: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Load(ctx context.Context, sessionID string) (engine.State, error) {
	var rec sessionRecord
	err := p.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var s engine.State
	if err := json.Unmarshal(rec.Document, &s); err != nil {
		return engine.State{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return s, nil
}

func (p *Postgres) Save(ctx context.Context, state engine.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	rec := sessionRecord{
		SessionID: state.SessionID,
		GameID:    state.GameID,
		Document:  doc,
	}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"game_id", "document", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}
