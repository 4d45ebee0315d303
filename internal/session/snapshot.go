package session

import (
	"slices"
	"sort"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/store"
)

// Snapshot is the actor's view of durable session state. It is treated as
// immutable: Apply returns a new value and never writes through shared
// slices.
type Snapshot struct {
	Session store.Session
	Members []store.Member
	Ready   []string
	Votes   []store.Vote
	Turns   []game.Turn
}

// Event is one durable change already written to the store.
type Event interface {
	isEvent()
}

type TurnStored struct{ Turn game.Turn }

type MemberChanged struct{ Member store.Member }

type ReadyChanged struct {
	PlayerID string
	Ready    bool
}

type VoteChanged struct {
	Vote   store.Vote
	Remove bool
}

type SessionStarted struct {
	GameID    string
	Version   int
	StartedAt time.Time
}

type SessionFinished struct {
	Status    string
	WinnerIDs []string
	EndedAt   time.Time
}

func (TurnStored) isEvent()      {}
func (MemberChanged) isEvent()   {}
func (ReadyChanged) isEvent()    {}
func (VoteChanged) isEvent()     {}
func (SessionStarted) isEvent()  {}
func (SessionFinished) isEvent() {}

func Apply(s Snapshot, e Event) Snapshot {
	switch ev := e.(type) {
	case TurnStored:
		turns := make([]game.Turn, 0, len(s.Turns)+1)
		for _, t := range s.Turns {
			if t.PlayerID == ev.Turn.PlayerID && t.RoundIndex == ev.Turn.RoundIndex {
				continue
			}
			turns = append(turns, t)
		}
		turns = append(turns, ev.Turn)
		sortTurns(turns)
		s.Turns = turns
	case MemberChanged:
		members := slices.Clone(s.Members)
		replaced := false
		for i := range members {
			if members[i].PlayerID == ev.Member.PlayerID {
				members[i] = ev.Member
				replaced = true
			}
		}
		if !replaced {
			members = append(members, ev.Member)
		}
		s.Members = members
	case ReadyChanged:
		ready := make([]string, 0, len(s.Ready)+1)
		for _, p := range s.Ready {
			if p != ev.PlayerID {
				ready = append(ready, p)
			}
		}
		if ev.Ready {
			ready = append(ready, ev.PlayerID)
		}
		sort.Strings(ready)
		s.Ready = ready
	case VoteChanged:
		votes := make([]store.Vote, 0, len(s.Votes)+1)
		for _, v := range s.Votes {
			if v != ev.Vote {
				votes = append(votes, v)
			}
		}
		if !ev.Remove {
			votes = append(votes, ev.Vote)
		}
		sort.Slice(votes, func(i, j int) bool {
			if votes[i].GameID == votes[j].GameID {
				return votes[i].PlayerID < votes[j].PlayerID
			}
			return votes[i].GameID < votes[j].GameID
		})
		s.Votes = votes
	case SessionStarted:
		at := ev.StartedAt
		s.Session.Status = store.SessionActive
		s.Session.GameID = ev.GameID
		s.Session.GameVersion = ev.Version
		s.Session.StartedAt = &at
	case SessionFinished:
		at := ev.EndedAt
		s.Session.Status = ev.Status
		s.Session.WinnerIDs = slices.Clone(ev.WinnerIDs)
		s.Session.EndedAt = &at
	}
	return s
}

func sortTurns(turns []game.Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		a, b := turns[i], turns[j]
		if a.RoundIndex != b.RoundIndex {
			return a.RoundIndex < b.RoundIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s Snapshot) Member(playerID string) (store.Member, bool) {
	for _, m := range s.Members {
		if m.PlayerID == playerID {
			return m, true
		}
	}
	return store.Member{}, false
}

func (s Snapshot) IsAccepted(playerID string) bool {
	m, ok := s.Member(playerID)
	return ok && m.Status == store.MemberAccepted
}

// Roster lists accepted members in join order. Once the session starts it is
// the game's player list.
func (s Snapshot) Roster() []string {
	out := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		if m.Status == store.MemberAccepted {
			out = append(out, m.PlayerID)
		}
	}
	return out
}

func (s Snapshot) IsReady(playerID string) bool {
	return slices.Contains(s.Ready, playerID)
}

func (s Snapshot) Finished() bool {
	return s.Session.Status == store.SessionComplete || s.Session.Status == store.SessionAbandoned
}

// TurnsForRound returns the turns of one round in creation order.
func (s Snapshot) TurnsForRound(round int) game.Round {
	var out game.Round
	for _, t := range s.Turns {
		if t.RoundIndex == round {
			out = append(out, t)
		}
	}
	return out
}

// VoteWinner picks the game with the most votes from accepted members. Ties
// go to the lexically smallest id.
func (s Snapshot) VoteWinner() (string, bool) {
	counts := map[string]int{}
	for _, v := range s.Votes {
		if s.IsAccepted(v.PlayerID) {
			counts[v.GameID]++
		}
	}
	best, bestCount := "", 0
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id < best) {
			best, bestCount = id, n
		}
	}
	return best, bestCount > 0
}
