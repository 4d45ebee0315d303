package game

import (
	"encoding/json"
	"sort"
	"time"
)

// Turn is one player's submission for one round. Data is opaque to the engine.
type Turn struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	PlayerID   string          `json:"player_id"`
	RoundIndex int             `json:"round_index"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Round holds the turns of one round ordered by creation time.
type Round []Turn

// GroupRounds buckets turns by round index. The result has one entry per
// round from 0 to the highest index seen; rounds nobody played are empty.
func GroupRounds(turns []Turn) []Round {
	maxRound := -1
	for _, t := range turns {
		if t.RoundIndex > maxRound {
			maxRound = t.RoundIndex
		}
	}
	rounds := make([]Round, maxRound+1)
	for _, t := range turns {
		if t.RoundIndex < 0 {
			continue
		}
		rounds[t.RoundIndex] = append(rounds[t.RoundIndex], t)
	}
	for _, r := range rounds {
		sort.SliceStable(r, func(i, j int) bool {
			if r[i].CreatedAt.Equal(r[j].CreatedAt) {
				return r[i].ID < r[j].ID
			}
			return r[i].CreatedAt.Before(r[j].CreatedAt)
		})
	}
	return rounds
}

// RoundsThrough returns rounds[0..k] padded with empty rounds when the
// history is shorter than k+1. A negative k yields no rounds.
func RoundsThrough(rounds []Round, k int) []Round {
	if k < 0 {
		return nil
	}
	out := make([]Round, k+1)
	copy(out, rounds)
	return out
}

// Players returns the distinct player ids that submitted in the round.
func (r Round) Players() map[string]struct{} {
	out := make(map[string]struct{}, len(r))
	for _, t := range r {
		out[t.PlayerID] = struct{}{}
	}
	return out
}

type Status string

const (
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
)

// Outcome is what a definition reports about a derived state.
type Outcome struct {
	Status    Status   `json:"status"`
	WinnerIDs []string `json:"winner_ids,omitempty"`
}

func cloneState(s json.RawMessage) json.RawMessage {
	if s == nil {
		return nil
	}
	out := make(json.RawMessage, len(s))
	copy(out, s)
	return out
}
