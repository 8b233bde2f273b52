package types

import "errors"

var ErrValidation = errors.New("missing required fields")

// ClientMessage is an inbound connection event.
type ClientMessage struct {
	Type        string         `json:"type"` // "join_game" | "leave_game" | "game_action"
	SessionID   string         `json:"sessionId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Kind        string         `json:"kind,omitempty"` // action kind, e.g. "move" | "chat"
	Payload     map[string]any `json:"payload,omitempty"`
}

const (
	MsgJoinGame   = "join_game"
	MsgLeaveGame  = "leave_game"
	MsgGameAction = "game_action"
)

// Validate rejects a message before it reaches any session queue.
func (m ClientMessage) Validate() error {
	switch m.Type {
	case MsgJoinGame:
		if m.SessionID == "" || m.UserID == "" || m.DisplayName == "" {
			return ErrValidation
		}
	case MsgLeaveGame:
		if m.SessionID == "" || m.UserID == "" {
			return ErrValidation
		}
	case MsgGameAction:
		if m.SessionID == "" || m.UserID == "" || m.Kind == "" {
			return ErrValidation
		}
	default:
		return errors.New("unknown message type")
	}
	return nil
}
