package session

import (
	"context"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/scheduler"
	"roundtable/internal/store"
)

// Store is the durable state the engine consumes. internal/store (Postgres)
// and internal/store/sqlite both satisfy it.
type Store interface {
	CreateSession(ctx context.Context, sess store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	StartSession(ctx context.Context, id, gameID string, version int, startedAt time.Time) error
	FinishSession(ctx context.Context, id, status string, winnerIDs []string, endedAt time.Time) error

	ListMembers(ctx context.Context, sessionID string) ([]store.Member, error)
	InsertInvite(ctx context.Context, m store.Member) error
	UpdateMemberStatus(ctx context.Context, sessionID, playerID, status string, at time.Time) error

	ListTurns(ctx context.Context, sessionID string) ([]game.Turn, error)
	UpsertTurn(ctx context.Context, t game.Turn) (game.Turn, store.TurnWrite, error)

	InsertChat(ctx context.Context, m store.ChatMessage) error
	ChatMessageExists(ctx context.Context, sessionID, messageID string) (bool, error)
	ListChat(ctx context.Context, sessionID, sceneID string, before *store.ChatCursor, limit int) ([]store.ChatMessage, string, error)
	SetReaction(ctx context.Context, messageID, playerID, kind string, on bool, at time.Time) (bool, error)

	SetReady(ctx context.Context, sessionID, playerID string, ready bool) error
	ListReady(ctx context.Context, sessionID string) ([]string, error)
	SetVote(ctx context.Context, sessionID, playerID, gameID string, remove bool) error
	ListVotes(ctx context.Context, sessionID string) ([]store.Vote, error)

	UpsertTask(ctx context.Context, sessionID string, t scheduler.Task) error
	DeleteTask(ctx context.Context, sessionID, id string) error
	DueTasks(ctx context.Context, sessionID string, now time.Time) ([]scheduler.Task, error)
	NextTask(ctx context.Context, sessionID string) (scheduler.Task, bool, error)
	SessionsWithTasks(ctx context.Context) ([]string, error)
}

// taskStore narrows Store to one session's task queue.
type taskStore struct {
	st        Store
	sessionID string
}

func (t taskStore) UpsertTask(ctx context.Context, task scheduler.Task) error {
	return t.st.UpsertTask(ctx, t.sessionID, task)
}

func (t taskStore) DeleteTask(ctx context.Context, id string) error {
	return t.st.DeleteTask(ctx, t.sessionID, id)
}

func (t taskStore) DueTasks(ctx context.Context, now time.Time) ([]scheduler.Task, error) {
	return t.st.DueTasks(ctx, t.sessionID, now)
}

func (t taskStore) NextTask(ctx context.Context) (scheduler.Task, bool, error) {
	return t.st.NextTask(ctx, t.sessionID)
}
