package game

import (
	"encoding/json"
	"fmt"
	"time"

	"roundtable/internal/game/random"
)

// counterGame sums submitted numbers and records one die roll per round so
// that fold results depend on generator continuity.
type counterGame struct{}

type counterState struct {
	Members []string `json:"members"`
	Total   int      `json:"total"`
	Rolls   []int    `json:"rolls"`
	Rounds  int      `json:"rounds"`
}

type counterTurn struct {
	N int `json:"n"`
}

func (counterGame) ID() string      { return "counter" }
func (counterGame) Version() int    { return 1 }
func (counterGame) MinPlayers() int { return 1 }
func (counterGame) MaxPlayers() int { return 4 }

func (counterGame) InitialState(rng *random.Generator, members []string) (json.RawMessage, error) {
	return json.Marshal(counterState{Members: members, Total: rng.Int(0, 9), Rolls: []int{}})
}

func (counterGame) PlayerState(global json.RawMessage, _ string) (json.RawMessage, error) {
	return global, nil
}

func (counterGame) ValidateTurn(_ json.RawMessage, _ string, data json.RawMessage) error {
	var t counterTurn
	if err := json.Unmarshal(data, &t); err != nil || t.N < 0 {
		return ErrInvalidTurn
	}
	return nil
}

func (counterGame) ApplyRound(global json.RawMessage, round Round, rng *random.Generator) (json.RawMessage, error) {
	var st counterState
	if err := json.Unmarshal(global, &st); err != nil {
		return nil, err
	}
	for _, turn := range round {
		var t counterTurn
		if err := json.Unmarshal(turn.Data, &t); err != nil {
			return nil, fmt.Errorf("turn %s: %w", turn.ID, err)
		}
		st.Total += t.N
	}
	st.Rolls = append(st.Rolls, rng.Int(1, 6))
	st.Rounds++
	return json.Marshal(st)
}

func (counterGame) PublicTurn(turn Turn, _ string, _ bool) json.RawMessage { return turn.Data }

func (counterGame) Status(json.RawMessage, []string) Outcome { return Outcome{Status: StatusActive} }

func (counterGame) RoundIndexDecider(*time.Location) RoundIndexDecider { return Synchronized{} }

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func turnAt(player string, round, n int, offset time.Duration) Turn {
	return Turn{
		ID:         fmt.Sprintf("%s-%d", player, round),
		SessionID:  "s1",
		PlayerID:   player,
		RoundIndex: round,
		Data:       json.RawMessage(fmt.Sprintf(`{"n":%d}`, n)),
		CreatedAt:  base.Add(offset),
	}
}
