// Package sqlite is a single-node SQLite backend with the same method set as
// the Postgres store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/scheduler"
	"roundtable/internal/store"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

type Store struct {
	sqlDB *sql.DB
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Open opens the database at path and applies the embedded schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, status, creator_id, game_id, game_version, seed, time_zone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Status, sess.CreatorID, nullString(sess.GameID), sess.GameVersion, sess.Seed, sess.TimeZone, toMicros(sess.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO members (session_id, player_id, status, invited_by, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?)`,
		sess.ID, sess.CreatorID, store.MemberAccepted, toMicros(sess.CreatedAt), toMicros(sess.CreatedAt),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	var (
		sess      store.Session
		gameID    sql.NullString
		winners   string
		createdAt int64
		startedAt sql.NullInt64
		endedAt   sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, status, creator_id, game_id, game_version, seed, time_zone, winner_ids, created_at, started_at, ended_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Status, &sess.CreatorID, &gameID, &sess.GameVersion, &sess.Seed, &sess.TimeZone,
		&winners, &createdAt, &startedAt, &endedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(winners), &sess.WinnerIDs); err != nil {
		return nil, fmt.Errorf("decode winner ids: %w", err)
	}
	sess.GameID = gameID.String
	sess.CreatedAt = fromMicros(createdAt)
	sess.StartedAt = timePtr(startedAt)
	sess.EndedAt = timePtr(endedAt)
	return &sess, nil
}

func (s *Store) StartSession(ctx context.Context, id, gameID string, version int, startedAt time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE sessions SET status = ?, game_id = ?, game_version = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		store.SessionActive, gameID, version, toMicros(startedAt), id, store.SessionPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("start session %s: %w", id, store.ErrConflict)
	}
	return nil
}

func (s *Store) FinishSession(ctx context.Context, id, status string, winnerIDs []string, endedAt time.Time) error {
	if winnerIDs == nil {
		winnerIDs = []string{}
	}
	winners, err := json.Marshal(winnerIDs)
	if err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE sessions SET status = ?, winner_ids = ?, ended_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		status, string(winners), toMicros(endedAt), id, store.SessionPending, store.SessionActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish session %s: %w", id, store.ErrConflict)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, sessionID string) ([]store.Member, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT session_id, player_id, status, invited_by, created_at, updated_at
		FROM members WHERE session_id = ?
		ORDER BY created_at, player_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Member{}
	for rows.Next() {
		var m store.Member
		var invitedBy sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&m.SessionID, &m.PlayerID, &m.Status, &invitedBy, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		m.InvitedBy = invitedBy.String
		m.CreatedAt = fromMicros(createdAt)
		m.UpdatedAt = fromMicros(updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) InsertInvite(ctx context.Context, m store.Member) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO members (session_id, player_id, status, invited_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.PlayerID, m.Status, nullString(m.InvitedBy), toMicros(m.CreatedAt), toMicros(m.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) UpdateMemberStatus(ctx context.Context, sessionID, playerID, status string, at time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE members SET status = ?, updated_at = ?
		WHERE session_id = ? AND player_id = ?`,
		status, toMicros(at), sessionID, playerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]game.Turn, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, session_id, player_id, round_index, data, created_at
		FROM turns WHERE session_id = ?
		ORDER BY round_index, created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.Turn{}
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (game.Turn, error) {
	var t game.Turn
	var data string
	var createdAt int64
	if err := row.Scan(&t.ID, &t.SessionID, &t.PlayerID, &t.RoundIndex, &data, &createdAt); err != nil {
		return game.Turn{}, err
	}
	t.Data = json.RawMessage(data)
	t.CreatedAt = fromMicros(createdAt)
	return t, nil
}

func (s *Store) UpsertTurn(ctx context.Context, t game.Turn) (game.Turn, store.TurnWrite, error) {
	stored, err := scanTurn(s.sqlDB.QueryRowContext(ctx, `
		INSERT INTO turns (id, session_id, player_id, round_index, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, player_id, round_index)
		DO UPDATE SET data = excluded.data, created_at = excluded.created_at
		WHERE turns.data <> excluded.data
		RETURNING id, session_id, player_id, round_index, data, created_at`,
		t.ID, t.SessionID, t.PlayerID, t.RoundIndex, string(t.Data), toMicros(t.CreatedAt)))
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := scanTurn(s.sqlDB.QueryRowContext(ctx, `
			SELECT id, session_id, player_id, round_index, data, created_at
			FROM turns WHERE session_id = ? AND player_id = ? AND round_index = ?`,
			t.SessionID, t.PlayerID, t.RoundIndex))
		return existing, store.TurnUnchanged, mapNotFound(err)
	}
	if err != nil {
		return game.Turn{}, 0, err
	}
	if stored.ID != t.ID {
		return stored, store.TurnReplaced, nil
	}
	return stored, store.TurnInserted, nil
}

func (s *Store) InsertChat(ctx context.Context, m store.ChatMessage) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, author_id, content, round_index, scene_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.AuthorID, m.Content, m.RoundIndex, nullString(m.SceneID), toMicros(m.CreatedAt))
	return err
}

func (s *Store) ChatMessageExists(ctx context.Context, sessionID, messageID string) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chat_messages WHERE session_id = ? AND id = ?`, sessionID, messageID).Scan(&n)
	return n > 0, err
}

func (s *Store) ListChat(ctx context.Context, sessionID, sceneID string, before *store.ChatCursor, limit int) ([]store.ChatMessage, string, error) {
	where := `session_id = ?`
	args := []any{sessionID}
	if sceneID != "" {
		where += ` AND scene_id = ?`
		args = append(args, sceneID)
	}
	if before != nil {
		where += ` AND (created_at, id) < (?, ?)`
		args = append(args, toMicros(before.CreatedAt), before.ID)
	}
	args = append(args, limit+1)
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, session_id, author_id, content, round_index, scene_id, created_at
		FROM chat_messages WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, "", err
	}
	msgs := []store.ChatMessage{}
	for rows.Next() {
		var m store.ChatMessage
		var scene sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.AuthorID, &m.Content, &m.RoundIndex, &scene, &createdAt); err != nil {
			rows.Close()
			return nil, "", err
		}
		m.SceneID = scene.String
		m.CreatedAt = fromMicros(createdAt)
		m.Reactions = []store.Reaction{}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, "", err
	}
	rows.Close()

	msgs, next := store.Page(msgs, limit)
	if err := s.attachReactions(ctx, msgs); err != nil {
		return nil, "", err
	}
	return msgs, next, nil
}

func (s *Store) attachReactions(ctx context.Context, msgs []store.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	placeholders := make([]string, len(msgs))
	args := make([]any, len(msgs))
	for i, m := range msgs {
		placeholders[i] = "?"
		args[i] = m.ID
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT message_id, kind, player_id FROM chat_reactions
		WHERE message_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY created_at, player_id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	var triples [][3]string
	for rows.Next() {
		var r [3]string
		if err := rows.Scan(&r[0], &r[1], &r[2]); err != nil {
			return err
		}
		triples = append(triples, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	grouped := store.GroupReactions(triples)
	for i := range msgs {
		if r, ok := grouped[msgs[i].ID]; ok {
			msgs[i].Reactions = r
		}
	}
	return nil
}

// SetReaction flips membership of (message, player, kind); at orders the
// reaction among others on the message.
func (s *Store) SetReaction(ctx context.Context, messageID, playerID, kind string, on bool, at time.Time) (bool, error) {
	var res sql.Result
	var err error
	if on {
		res, err = s.sqlDB.ExecContext(ctx, `
			INSERT INTO chat_reactions (message_id, player_id, kind, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (message_id, player_id, kind) DO NOTHING`,
			messageID, playerID, kind, toMicros(at))
	} else {
		res, err = s.sqlDB.ExecContext(ctx,
			`DELETE FROM chat_reactions WHERE message_id = ? AND player_id = ? AND kind = ?`,
			messageID, playerID, kind)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) SetReady(ctx context.Context, sessionID, playerID string, ready bool) error {
	var err error
	if ready {
		_, err = s.sqlDB.ExecContext(ctx,
			`INSERT INTO ready_players (session_id, player_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, sessionID, playerID)
	} else {
		_, err = s.sqlDB.ExecContext(ctx,
			`DELETE FROM ready_players WHERE session_id = ? AND player_id = ?`, sessionID, playerID)
	}
	return err
}

func (s *Store) ListReady(ctx context.Context, sessionID string) ([]string, error) {
	return s.strings(ctx, `SELECT player_id FROM ready_players WHERE session_id = ? ORDER BY player_id`, sessionID)
}

func (s *Store) SetVote(ctx context.Context, sessionID, playerID, gameID string, remove bool) error {
	var err error
	if remove {
		_, err = s.sqlDB.ExecContext(ctx,
			`DELETE FROM game_votes WHERE session_id = ? AND player_id = ? AND game_id = ?`, sessionID, playerID, gameID)
	} else {
		_, err = s.sqlDB.ExecContext(ctx,
			`INSERT INTO game_votes (session_id, player_id, game_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			sessionID, playerID, gameID)
	}
	return err
}

func (s *Store) ListVotes(ctx context.Context, sessionID string) ([]store.Vote, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, game_id FROM game_votes WHERE session_id = ? ORDER BY game_id, player_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.Vote{}
	for rows.Next() {
		var v store.Vote
		if err := rows.Scan(&v.PlayerID, &v.GameID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpsertTask(ctx context.Context, sessionID string, t scheduler.Task) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (session_id, id, type, data, scheduled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, id)
		DO UPDATE SET type = excluded.type, data = excluded.data, scheduled_at = excluded.scheduled_at`,
		sessionID, t.ID, t.Type, []byte(t.Data), toMicros(t.ScheduledAt))
	return err
}

func (s *Store) DeleteTask(ctx context.Context, sessionID, id string) error {
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE session_id = ? AND id = ?`, sessionID, id)
	return err
}

func scanTask(row scanner) (scheduler.Task, error) {
	var t scheduler.Task
	var data []byte
	var at int64
	if err := row.Scan(&t.ID, &t.Type, &data, &at); err != nil {
		return scheduler.Task{}, err
	}
	if len(data) > 0 {
		t.Data = json.RawMessage(data)
	}
	t.ScheduledAt = fromMicros(at)
	return t, nil
}

func (s *Store) DueTasks(ctx context.Context, sessionID string, now time.Time) ([]scheduler.Task, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, type, data, scheduled_at FROM scheduled_tasks
		WHERE session_id = ? AND scheduled_at <= ?
		ORDER BY scheduled_at, id`, sessionID, toMicros(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []scheduler.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) NextTask(ctx context.Context, sessionID string) (scheduler.Task, bool, error) {
	t, err := scanTask(s.sqlDB.QueryRowContext(ctx, `
		SELECT id, type, data, scheduled_at FROM scheduled_tasks
		WHERE session_id = ? ORDER BY scheduled_at, id LIMIT 1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.Task{}, false, nil
	}
	if err != nil {
		return scheduler.Task{}, false, err
	}
	return t, true, nil
}

func (s *Store) SessionsWithTasks(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT session_id FROM scheduled_tasks ORDER BY session_id`)
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
