package store

import "time"

const (
	SessionPending   = "pending"
	SessionActive    = "active"
	SessionComplete  = "complete"
	SessionAbandoned = "abandoned"
)

const (
	MemberPending  = "pending"
	MemberAccepted = "accepted"
	MemberDeclined = "declined"
	MemberExpired  = "expired"
)

type Session struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	CreatorID   string     `json:"creator_id"`
	GameID      string     `json:"game_id,omitempty"`
	GameVersion int        `json:"game_version,omitempty"`
	Seed        string     `json:"seed"`
	TimeZone    string     `json:"time_zone"`
	WinnerIDs   []string   `json:"winner_ids,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

type Member struct {
	SessionID string    `json:"session_id"`
	PlayerID  string    `json:"player_id"`
	Status    string    `json:"status"`
	InvitedBy string    `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	AuthorID   string     `json:"author_id"`
	Content    string     `json:"content"`
	RoundIndex int        `json:"round_index"`
	SceneID    string     `json:"scene_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Reactions  []Reaction `json:"reactions"`
}

// Reaction groups the players who applied one reaction kind to a message.
type Reaction struct {
	Kind      string   `json:"kind"`
	PlayerIDs []string `json:"player_ids"`
}

type Vote struct {
	PlayerID string `json:"player_id"`
	GameID   string `json:"game_id"`
}

// TurnWrite reports what an upsert did to the stored row.
type TurnWrite int

const (
	TurnInserted TurnWrite = iota
	TurnReplaced
	TurnUnchanged
)
