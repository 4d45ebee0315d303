package session

import (
	"slices"
	"testing"

	"roundtable/internal/game"
	"roundtable/internal/store"
)

func baseSnapshot() Snapshot {
	return Snapshot{
		Session: store.Session{ID: "s1", Status: store.SessionPending},
		Members: []store.Member{
			{PlayerID: "alice", Status: store.MemberAccepted},
			{PlayerID: "bob", Status: store.MemberPending},
		},
		Ready: []string{"alice"},
		Turns: []game.Turn{{ID: "t1", PlayerID: "alice", RoundIndex: 0, CreatedAt: testStart}},
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	before := baseSnapshot()
	after := Apply(before, MemberChanged{Member: store.Member{PlayerID: "bob", Status: store.MemberAccepted}})
	after = Apply(after, ReadyChanged{PlayerID: "bob", Ready: true})
	after = Apply(after, TurnStored{Turn: game.Turn{ID: "t1", PlayerID: "alice", RoundIndex: 0, Data: []byte(`{"card":"AS"}`)}})
	after = Apply(after, TurnStored{Turn: game.Turn{ID: "t2", PlayerID: "bob", RoundIndex: 0}})

	if before.Members[1].Status != store.MemberPending {
		t.Fatalf("input members mutated")
	}
	if !slices.Equal(before.Ready, []string{"alice"}) || len(before.Turns) != 1 || before.Turns[0].Data != nil {
		t.Fatalf("input mutated: %+v", before)
	}
	if !slices.Equal(after.Roster(), []string{"alice", "bob"}) || !after.IsReady("bob") {
		t.Fatalf("unexpected snapshot %+v", after)
	}
	if len(after.TurnsForRound(0)) != 2 {
		t.Fatalf("expected replacement plus new turn, got %+v", after.Turns)
	}
}

func TestApplyLifecycle(t *testing.T) {
	s := Apply(baseSnapshot(), SessionStarted{GameID: "highcard", Version: 1, StartedAt: testStart})
	if s.Session.Status != store.SessionActive || s.Session.StartedAt == nil || s.Finished() {
		t.Fatalf("unexpected started session %+v", s.Session)
	}
	winners := []string{"alice"}
	s = Apply(s, SessionFinished{Status: store.SessionComplete, WinnerIDs: winners, EndedAt: testStart})
	winners[0] = "mallory"
	if !s.Finished() || s.Session.WinnerIDs[0] != "alice" {
		t.Fatalf("unexpected finished session %+v", s.Session)
	}
}

func TestVoteWinner(t *testing.T) {
	s := baseSnapshot()
	if _, ok := s.VoteWinner(); ok {
		t.Fatalf("no votes must not pick a game")
	}
	s = Apply(s, VoteChanged{Vote: store.Vote{PlayerID: "alice", GameID: "zeta"}})
	s = Apply(s, VoteChanged{Vote: store.Vote{PlayerID: "alice", GameID: "alpha"}})
	// Votes from members who have not accepted do not count.
	s = Apply(s, VoteChanged{Vote: store.Vote{PlayerID: "bob", GameID: "zeta"}})
	if got, _ := s.VoteWinner(); got != "alpha" {
		t.Fatalf("expected lexical tie break, got %s", got)
	}
	s = Apply(s, VoteChanged{Vote: store.Vote{PlayerID: "alice", GameID: "alpha"}, Remove: true})
	if got, _ := s.VoteWinner(); got != "zeta" {
		t.Fatalf("expected zeta after removal, got %s", got)
	}
}
