package engine

import (
	"maps"
	"slices"
	"time"
)

// Participant is a user associated with a session. Active reflects current
// connectivity, not membership: a participant who disconnects stays in the
// roster as inactive so turn and history references to them remain valid.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Active      bool   `json:"active"`
}

// State is one session's authoritative snapshot. It is immutable by
// convention: every transition builds new maps/slices via Clone, so a State
// value handed to the broadcaster is never mutated again.
type State struct {
	SessionID         string         `json:"sessionId"`
	GameID            string         `json:"gameId"`
	Participants      []Participant  `json:"participants"`
	GameData          map[string]any `json:"gameData"`
	CurrentTurnUserID string         `json:"currentTurnUserId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Action is a client-submitted mutation. Only its effect on State is
// retained; the action itself is echoed back in broadcasts for convenience.
type Action struct {
	Kind         string         `json:"kind"`
	SessionID    string         `json:"sessionId"`
	ActingUserID string         `json:"actingUserId"`
	Payload      map[string]any `json:"payload"`
}

func NewState(sessionID, gameID string, now time.Time) State {
	return State{
		SessionID: sessionID,
		GameID:    gameID,
		GameData:  map[string]any{"status": "waiting"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s State) Clone() State {
	ns := s
	ns.Participants = slices.Clone(s.Participants)
	ns.GameData = maps.Clone(s.GameData)
	if ns.GameData == nil {
		ns.GameData = map[string]any{}
	}
	return ns
}

// touch bumps UpdatedAt, keeping it strictly increasing even when two
// commits land within the clock's resolution.
func (s *State) touch(now time.Time) {
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Nanosecond)
	}
	s.UpdatedAt = now
}

func findParticipant(ps []Participant, userID string) (int, bool) {
	for i, p := range ps {
		if p.ID == userID {
			return i, true
		}
	}
	return -1, false
}

func (s State) HasParticipant(userID string) bool {
	_, ok := findParticipant(s.Participants, userID)
	return ok
}

// ParticipantName returns the display name on record for userID, or "" if
// the user is not in the roster.
func (s State) ParticipantName(userID string) string {
	if i, ok := findParticipant(s.Participants, userID); ok {
		return s.Participants[i].DisplayName
	}
	return ""
}

// Join marks an existing participant active (refreshing their display name)
// or appends a new one in insertion order. The first participant of a
// session with no current turn becomes the mover.
func Join(s State, userID, displayName string, now time.Time) State {
	ns := s.Clone()
	if i, ok := findParticipant(ns.Participants, userID); ok {
		ns.Participants[i].Active = true
		if displayName != "" {
			ns.Participants[i].DisplayName = displayName
		}
	} else {
		ns.Participants = append(ns.Participants, Participant{
			ID:          userID,
			DisplayName: displayName,
			Active:      true,
		})
	}
	if ns.CurrentTurnUserID == "" && len(ns.Participants) == 1 {
		ns.CurrentTurnUserID = userID
	}
	ns.touch(now)
	return ns
}

// Deactivate flips a participant inactive; the roster entry is never
// removed. If the departing user held the turn it is force-advanced to the
// next active participant; with no eligible mover the turn stays with the
// now-inactive user, signalling "no eligible mover".
func Deactivate(s State, userID string, now time.Time) State {
	ns := s.Clone()
	i, ok := findParticipant(ns.Participants, userID)
	if !ok {
		return ns
	}
	ns.Participants[i].Active = false
	if ns.CurrentTurnUserID == userID {
		ns.CurrentTurnUserID = NextTurn(ns.Participants, userID)
	}
	ns.touch(now)
	return ns
}
