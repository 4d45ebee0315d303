package game

import (
	"encoding/json"
	"errors"
	"time"

	"roundtable/internal/game/random"
)

// ErrInvalidTurn is the generic rejection. Definitions may return their own
// errors; anything wrapping ErrInvalidTurn keeps its message on the wire.
var ErrInvalidTurn = errors.New("invalid_turn")

// ErrNotYourTurn rejects a turn from someone the game has no seat for.
var ErrNotYourTurn = errors.New("not_your_turn")

// Definition is the content contract one game implements. All methods must be
// pure: the same inputs produce the same outputs, and randomness only comes
// from the generator passed in.
type Definition interface {
	ID() string
	Version() int
	MinPlayers() int
	MaxPlayers() int

	// InitialState builds round-zero state for the given members.
	InitialState(rng *random.Generator, members []string) (json.RawMessage, error)
	// PlayerState projects the global state to what one player may see.
	PlayerState(global json.RawMessage, playerID string) (json.RawMessage, error)
	// ValidateTurn checks data against the player's view before the round it targets.
	ValidateTurn(player json.RawMessage, playerID string, data json.RawMessage) error
	// ApplyRound folds one closed round into the global state.
	ApplyRound(global json.RawMessage, round Round, rng *random.Generator) (json.RawMessage, error)
	// PublicTurn renders a turn for viewerID. roundComplete tells whether the
	// turn's round has closed.
	PublicTurn(turn Turn, viewerID string, roundComplete bool) json.RawMessage
	Status(global json.RawMessage, members []string) Outcome
	RoundIndexDecider(loc *time.Location) RoundIndexDecider
}

// RoundIndexDecider decides the current round of a started session.
type RoundIndexDecider interface {
	Decide(in DecideInput) RoundDecision
}

type DecideInput struct {
	Now       time.Time
	StartedAt time.Time
	Members   []string
	Turns     []Turn
}

type RoundDecision struct {
	RoundIndex   int        `json:"round_index"`
	PendingTurns []string   `json:"pending_turns"`
	CheckAgainAt *time.Time `json:"check_again_at,omitempty"`
}

func pendingFor(members []string, turns []Turn, roundIndex int) []string {
	submitted := map[string]struct{}{}
	for _, t := range turns {
		if t.RoundIndex == roundIndex {
			submitted[t.PlayerID] = struct{}{}
		}
	}
	pending := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := submitted[m]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}
