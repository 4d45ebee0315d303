package session

import (
	"encoding/json"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/store"
)

// Server-to-client notification types.
const (
	NotifyRoundChange        = "roundChange"
	NotifyStatusChange       = "statusChange"
	NotifyMembersChange      = "membersChange"
	NotifyTurnPlayed         = "turnPlayed"
	NotifyChat               = "chat"
	NotifyChatReaction       = "chatReaction"
	NotifyGameStarting       = "gameStarting"
	NotifyNextRoundScheduled = "nextRoundScheduled"
	NotifyPlayerReady        = "playerReady"
	NotifyPlayerUnready      = "playerUnready"
	NotifyPlayerVoteForGame  = "playerVoteForGame"
	// NotifyResync tells a reconnecting client its lastEventId could not be
	// replayed and it should call getState.
	NotifyResync = "resync"
)

// Client-to-server request types.
const (
	RequestSubmitTurn         = "submitTurn"
	RequestSendChat           = "sendChat"
	RequestToggleChatReaction = "toggleChatReaction"
	RequestReadyUp            = "readyUp"
	RequestVoteForGame        = "voteForGame"
	RequestChat               = "requestChat"
	RequestGetState           = "getState"
	RequestGetRound           = "getRound"
	RequestInvite             = "invite"
	RequestRespondInvite      = "respondInvite"
	RequestLeave              = "leave"
	RequestPing               = "ping"
)

type SubmitTurnRequest struct {
	Data json.RawMessage `json:"data"`
}

type SendChatRequest struct {
	Content string `json:"content"`
	SceneID string `json:"sceneId,omitempty"`
}

type ToggleReactionRequest struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	IsOn      bool   `json:"isOn"`
}

type ReadyUpRequest struct {
	Unready bool `json:"unready"`
}

type VoteForGameRequest struct {
	GameID string `json:"gameId"`
	Remove bool   `json:"remove"`
}

type RequestChatRequest struct {
	NextToken string `json:"nextToken,omitempty"`
	SceneID   string `json:"sceneId,omitempty"`
}

type GetRoundRequest struct {
	RoundIndex int `json:"roundIndex"`
}

type InviteRequest struct {
	PlayerID string `json:"playerId"`
}

type RespondInviteRequest struct {
	Accept bool `json:"accept"`
}

// Notification payloads.

type RoundChange struct {
	RoundIndex         int      `json:"round_index"`
	PreviousRoundIndex int      `json:"previous_round_index"`
	PendingTurns       []string `json:"pending_turns"`
}

type StatusChange struct {
	Status    string   `json:"status"`
	WinnerIDs []string `json:"winner_ids,omitempty"`
}

type MembersChange struct {
	Members []store.Member `json:"members"`
}

type TurnPlayed struct {
	PlayerID     string   `json:"player_id"`
	RoundIndex   int      `json:"round_index"`
	Replaced     bool     `json:"replaced"`
	PendingTurns []string `json:"pending_turns"`
}

type ChatReaction struct {
	MessageID string `json:"message_id"`
	PlayerID  string `json:"player_id"`
	Reaction  string `json:"reaction"`
	IsOn      bool   `json:"is_on"`
}

type GameStarting struct {
	GameID    string    `json:"game_id"`
	Version   int       `json:"version"`
	Players   []string  `json:"players"`
	StartedAt time.Time `json:"started_at"`
}

type NextRoundScheduled struct {
	RoundIndex int       `json:"round_index"`
	At         time.Time `json:"at"`
}

type PlayerReady struct {
	PlayerID string `json:"player_id"`
}

type PlayerVoteForGame struct {
	PlayerID string `json:"player_id"`
	GameID   string `json:"game_id"`
	Remove   bool   `json:"remove"`
}

// Response payloads.

type StateView struct {
	Session     store.Session       `json:"session"`
	Members     []store.Member      `json:"members"`
	Ready       []string            `json:"ready"`
	Votes       []store.Vote        `json:"votes"`
	Round       *game.RoundDecision `json:"round,omitempty"`
	PlayerState json.RawMessage     `json:"player_state,omitempty"`
	LastEventID string              `json:"last_event_id"`
}

type PublicTurn struct {
	PlayerID  string          `json:"player_id"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type RoundView struct {
	RoundIndex int          `json:"round_index"`
	Complete   bool         `json:"complete"`
	Turns      []PublicTurn `json:"turns"`
}

type ChatPage struct {
	Messages  []store.ChatMessage `json:"messages"`
	NextToken string              `json:"next_token,omitempty"`
}

type TurnAccepted struct {
	TurnID     string `json:"turn_id"`
	RoundIndex int    `json:"round_index"`
	Unchanged  bool   `json:"unchanged,omitempty"`
}
