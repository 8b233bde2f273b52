package engine

import (
	"errors"
	"time"
)

var ErrNotYourTurn = errors.New("not your turn")

const (
	KindMove = "move"
	KindChat = "chat"
)

// RequiresTurn reports whether an action kind is gated on turn ownership.
// Only move is; chat and unrecognized kinds may be submitted by any
// participant at any time.
func RequiresTurn(kind string) bool {
	return kind == KindMove
}

// Apply computes the state after an action. Turn ownership is checked by
// the caller before Apply runs; Apply itself never fails.
//
//   - move: shallow-merges the payload into gameData, records lastAction,
//     and rotates the turn to the next active participant.
//   - chat: appends {userId, displayName, message, timestamp} to the
//     messages list inside gameData; turn unchanged.
//   - anything else: shallow-merges the payload and records lastAction,
//     turn unchanged. This is a deliberately permissive escape hatch for
//     caller-defined game state; payloads are not validated.
func Apply(s State, a Action, now time.Time) State {
	ns := s.Clone()
	switch a.Kind {
	case KindMove:
		mergePayload(&ns, a)
		ns.CurrentTurnUserID = NextTurn(ns.Participants, a.ActingUserID)

	case KindChat:
		msgs, _ := ns.GameData["messages"].([]any)
		ns.GameData["messages"] = append(append([]any{}, msgs...), map[string]any{
			"userId":      a.ActingUserID,
			"displayName": ns.ParticipantName(a.ActingUserID),
			"message":     a.Payload["message"],
			"timestamp":   now,
		})

	default:
		mergePayload(&ns, a)
	}
	ns.touch(now)
	return ns
}

func mergePayload(ns *State, a Action) {
	for k, v := range a.Payload {
		ns.GameData[k] = v
	}
	ns.GameData["lastAction"] = map[string]any{
		"kind":    a.Kind,
		"userId":  a.ActingUserID,
		"payload": a.Payload,
	}
}
