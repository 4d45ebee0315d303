// Package highcard is a small card game: every round each player plays one
// card from their hand and the highest rank takes the point.
package highcard

import (
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/game/random"
)

var (
	ErrCardNotInHand = errors.New("card_not_in_hand")
	ErrHandEmpty     = errors.New("hand_empty")
)

const maxHandSize = 5

type Game struct {
	id     string
	period game.Period
}

// New is the synchronized variant: a round closes once everyone has played.
func New() Game { return Game{id: "highcard"} }

// NewDaily closes one round per local calendar day.
func NewDaily() Game { return Game{id: "highcard-daily", period: game.Period{Days: 1}} }

func (g Game) ID() string      { return g.id }
func (g Game) Version() int    { return 1 }
func (g Game) MinPlayers() int { return 2 }
func (g Game) MaxPlayers() int { return 6 }

type State struct {
	Members  []string            `json:"members"`
	Hands    map[string][]string `json:"hands"`
	Scores   map[string]int      `json:"scores"`
	HandSize int                 `json:"hand_size"`
	Rounds   int                 `json:"rounds"`
	Last     *RoundResult        `json:"last_round,omitempty"`
}

type RoundResult struct {
	RoundIndex int               `json:"round_index"`
	Plays      map[string]string `json:"plays"`
	WinnerID   string            `json:"winner_id,omitempty"`
}

type PlayerView struct {
	PlayerID string         `json:"player_id"`
	Hand     []string       `json:"hand"`
	Scores   map[string]int `json:"scores"`
	HandSize int            `json:"hand_size"`
	Rounds   int            `json:"rounds"`
	Last     *RoundResult   `json:"last_round,omitempty"`
}

type TurnData struct {
	Card string `json:"card"`
}

func (g Game) InitialState(rng *random.Generator, members []string) (json.RawMessage, error) {
	size := maxHandSize
	if len(members) > 0 && 52/len(members) < size {
		size = 52 / len(members)
	}
	scores := make(map[string]int, len(members))
	for _, m := range members {
		scores[m] = 0
	}
	return json.Marshal(State{
		Members:  members,
		Hands:    Deal(rng, members, size),
		Scores:   scores,
		HandSize: size,
	})
}

func (g Game) PlayerState(global json.RawMessage, playerID string) (json.RawMessage, error) {
	var st State
	if err := json.Unmarshal(global, &st); err != nil {
		return nil, err
	}
	hand := st.Hands[playerID]
	if hand == nil {
		hand = []string{}
	}
	return json.Marshal(PlayerView{
		PlayerID: playerID,
		Hand:     hand,
		Scores:   st.Scores,
		HandSize: st.HandSize,
		Rounds:   st.Rounds,
		Last:     st.Last,
	})
}

func (g Game) ValidateTurn(player json.RawMessage, playerID string, data json.RawMessage) error {
	var view PlayerView
	if err := json.Unmarshal(player, &view); err != nil {
		return err
	}
	if _, seated := view.Scores[playerID]; !seated {
		return game.ErrNotYourTurn
	}
	var td TurnData
	if err := json.Unmarshal(data, &td); err != nil {
		return game.ErrInvalidTurn
	}
	card, err := ParseCard(td.Card)
	if err != nil {
		return err
	}
	if len(view.Hand) == 0 {
		return ErrHandEmpty
	}
	if !slices.Contains(view.Hand, card.String()) {
		return ErrCardNotInHand
	}
	return nil
}

func (g Game) ApplyRound(global json.RawMessage, round game.Round, rng *random.Generator) (json.RawMessage, error) {
	var st State
	if err := json.Unmarshal(global, &st); err != nil {
		return nil, err
	}
	result := &RoundResult{RoundIndex: st.Rounds, Plays: map[string]string{}}
	best := Rank(0)
	var leaders []string
	for _, turn := range round {
		hand, ok := st.Hands[turn.PlayerID]
		if !ok {
			continue
		}
		var td TurnData
		if err := json.Unmarshal(turn.Data, &td); err != nil {
			continue
		}
		card, err := ParseCard(td.Card)
		if err != nil {
			continue
		}
		idx := slices.Index(hand, card.String())
		if idx < 0 {
			continue
		}
		st.Hands[turn.PlayerID] = slices.Delete(slices.Clone(hand), idx, idx+1)
		result.Plays[turn.PlayerID] = card.String()
		switch {
		case card.Rank > best:
			best = card.Rank
			leaders = []string{turn.PlayerID}
		case card.Rank == best:
			leaders = append(leaders, turn.PlayerID)
		}
	}
	if len(leaders) > 0 {
		sort.Strings(leaders)
		winner, _ := random.Pick(rng, leaders)
		result.WinnerID = winner
		st.Scores[winner]++
	}
	st.Rounds++
	st.Last = result
	return json.Marshal(st)
}

type publicTurn struct {
	PlayerID   string `json:"player_id"`
	RoundIndex int    `json:"round_index"`
	Card       string `json:"card,omitempty"`
	Hidden     bool   `json:"hidden,omitempty"`
}

func (g Game) PublicTurn(turn game.Turn, viewerID string, roundComplete bool) json.RawMessage {
	out := publicTurn{PlayerID: turn.PlayerID, RoundIndex: turn.RoundIndex}
	if roundComplete || viewerID == turn.PlayerID {
		var td TurnData
		_ = json.Unmarshal(turn.Data, &td)
		out.Card = td.Card
	} else {
		out.Hidden = true
	}
	b, _ := json.Marshal(out)
	return b
}

func (g Game) Status(global json.RawMessage, members []string) game.Outcome {
	var st State
	if err := json.Unmarshal(global, &st); err != nil {
		return game.Outcome{Status: game.StatusActive}
	}
	if st.HandSize == 0 || st.Rounds < st.HandSize {
		return game.Outcome{Status: game.StatusActive}
	}
	top := -1
	var winners []string
	for _, m := range members {
		score := st.Scores[m]
		switch {
		case score > top:
			top = score
			winners = []string{m}
		case score == top:
			winners = append(winners, m)
		}
	}
	sort.Strings(winners)
	return game.Outcome{Status: game.StatusComplete, WinnerIDs: winners}
}

func (g Game) RoundIndexDecider(loc *time.Location) game.RoundIndexDecider {
	if g.period == (game.Period{}) {
		return game.Synchronized{}
	}
	return game.NewPeriodic(g.period, loc)
}
