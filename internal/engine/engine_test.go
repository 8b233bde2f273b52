package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roster(ids ...string) []Participant {
	ps := make([]Participant, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, Participant{ID: id, DisplayName: id, Active: true})
	}
	return ps
}

func TestJoin_FirstParticipantTakesTurn(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())

	require.Len(t, st.Participants, 1)
	assert.True(t, st.Participants[0].Active)
	assert.Equal(t, "Alice", st.Participants[0].DisplayName)
	assert.Equal(t, "alice", st.CurrentTurnUserID)
}

func TestJoin_Idempotent(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())
	st = Join(st, "alice", "Alice A.", time.Now())

	require.Len(t, st.Participants, 1)
	assert.True(t, st.Participants[0].Active)
	assert.Equal(t, "Alice A.", st.Participants[0].DisplayName)
}

func TestJoin_PreservesInsertionOrder(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	for _, u := range []string{"alice", "bob", "carol"} {
		st = Join(st, u, u, time.Now())
	}
	require.Len(t, st.Participants, 3)
	assert.Equal(t, "alice", st.Participants[0].ID)
	assert.Equal(t, "bob", st.Participants[1].ID)
	assert.Equal(t, "carol", st.Participants[2].ID)
	assert.Equal(t, "alice", st.CurrentTurnUserID)
}

func TestDeactivate_KeepsRosterEntry(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())
	st = Join(st, "bob", "Bob", time.Now())

	st = Deactivate(st, "bob", time.Now())

	require.Len(t, st.Participants, 2)
	assert.False(t, st.Participants[1].Active)
	assert.Equal(t, "alice", st.CurrentTurnUserID)
}

func TestDeactivate_ForcesTurnAdvance(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())
	st = Join(st, "bob", "Bob", time.Now())

	st = Deactivate(st, "alice", time.Now())

	assert.Equal(t, "bob", st.CurrentTurnUserID)
}

func TestDeactivate_LastMoverKeepsTurn(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())

	st = Deactivate(st, "alice", time.Now())

	// Degraded but defined: no eligible mover, turn stays put.
	assert.Equal(t, "alice", st.CurrentTurnUserID)
	assert.False(t, st.Participants[0].Active)
}

func TestNextTurn(t *testing.T) {
	tests := []struct {
		name  string
		ps    []Participant
		moved string
		want  string
	}{
		{"rotates in insertion order", roster("a", "b", "c"), "a", "b"},
		{"wraps around", roster("a", "b", "c"), "c", "a"},
		{"skips inactive", func() []Participant {
			ps := roster("a", "b", "c")
			ps[1].Active = false
			return ps
		}(), "a", "c"},
		{"single participant keeps turn", roster("a"), "a", "a"},
		{"all others inactive keeps turn", func() []Participant {
			ps := roster("a", "b")
			ps[1].Active = false
			return ps
		}(), "a", "a"},
		{"unknown mover scans from the top", roster("a", "b"), "zz", "a"},
		{"empty roster", nil, "a", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextTurn(tt.ps, tt.moved))
		})
	}
}

func TestRequiresTurn(t *testing.T) {
	assert.True(t, RequiresTurn(KindMove))
	assert.False(t, RequiresTurn(KindChat))
	assert.False(t, RequiresTurn("custom_thing"))
}

func TestApply_MoveMergesAndRotates(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())
	st = Join(st, "bob", "Bob", time.Now())

	next := Apply(st, Action{
		Kind:         KindMove,
		SessionID:    "s1",
		ActingUserID: "alice",
		Payload:      map[string]any{"x": 1},
	}, time.Now())

	assert.Equal(t, 1, next.GameData["x"])
	assert.Equal(t, "bob", next.CurrentTurnUserID)

	last, ok := next.GameData["lastAction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, KindMove, last["kind"])
	assert.Equal(t, "alice", last["userId"])

	// original state untouched
	assert.NotContains(t, st.GameData, "x")
}

func TestApply_SingleParticipantMoveKeepsTurn(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())

	next := Apply(st, Action{Kind: KindMove, ActingUserID: "alice"}, time.Now())

	assert.Equal(t, "alice", next.CurrentTurnUserID)
}

func TestApply_ChatAppendsMessage(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())
	st = Join(st, "bob", "Bob", time.Now())

	next := Apply(st, Action{
		Kind:         KindChat,
		ActingUserID: "bob",
		Payload:      map[string]any{"message": "hi"},
	}, time.Now())

	msgs, ok := next.GameData["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	m := msgs[0].(map[string]any)
	assert.Equal(t, "bob", m["userId"])
	assert.Equal(t, "Bob", m["displayName"])
	assert.Equal(t, "hi", m["message"])

	// chat never touches the turn
	assert.Equal(t, "alice", next.CurrentTurnUserID)

	next = Apply(next, Action{
		Kind:         KindChat,
		ActingUserID: "alice",
		Payload:      map[string]any{"message": "hello"},
	}, time.Now())
	msgs = next.GameData["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestApply_UnknownKindMergesWithoutTurnChange(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())
	st = Join(st, "bob", "Bob", time.Now())

	next := Apply(st, Action{
		Kind:         "set_board",
		ActingUserID: "bob",
		Payload:      map[string]any{"board": "b1"},
	}, time.Now())

	assert.Equal(t, "b1", next.GameData["board"])
	assert.Equal(t, "alice", next.CurrentTurnUserID)
	assert.Contains(t, next.GameData, "lastAction")
}

func TestUpdatedAt_StrictlyIncreases(t *testing.T) {
	now := time.Now()
	st := NewState("s1", "g1", now)
	// Same clock reading on every commit must still move UpdatedAt forward.
	st = Join(st, "alice", "Alice", now)
	t1 := st.UpdatedAt
	st = Apply(st, Action{Kind: "noop", ActingUserID: "alice"}, now)
	t2 := st.UpdatedAt
	st = Deactivate(st, "alice", now)
	t3 := st.UpdatedAt

	assert.True(t, t1.After(now))
	assert.True(t, t2.After(t1))
	assert.True(t, t3.After(t2))
}

func TestClone_Isolation(t *testing.T) {
	st := NewState("s1", "g1", time.Now())
	st = Join(st, "alice", "Alice", time.Now())

	cp := st.Clone()
	cp.Participants[0].Active = false
	cp.GameData["x"] = 1

	assert.True(t, st.Participants[0].Active)
	assert.NotContains(t, st.GameData, "x")
}
