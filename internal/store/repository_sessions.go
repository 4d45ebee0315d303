package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, status, creator_id, game_id, game_version, seed, time_zone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.Status, sess.CreatorID, textParam(sess.GameID), sess.GameVersion, sess.Seed, sess.TimeZone, sess.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO members (session_id, player_id, status, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $4)`,
		sess.ID, sess.CreatorID, MemberAccepted, sess.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess      Session
		gameID    pgtype.Text
		startedAt pgtype.Timestamptz
		endedAt   pgtype.Timestamptz
	)
	err := s.Pool.QueryRow(ctx, `
		SELECT id, status, creator_id, game_id, game_version, seed, time_zone, winner_ids, created_at, started_at, ended_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Status, &sess.CreatorID, &gameID, &sess.GameVersion, &sess.Seed, &sess.TimeZone,
		&sess.WinnerIDs, &sess.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	sess.GameID = textVal(gameID)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.StartedAt = timePtrVal(startedAt)
	sess.EndedAt = timePtrVal(endedAt)
	return &sess, nil
}

// StartSession moves a pending session to active. It fails with ErrConflict
// when the session already left pending.
func (s *Store) StartSession(ctx context.Context, id, gameID string, version int, startedAt time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE sessions SET status = $2, game_id = $3, game_version = $4, started_at = $5
		WHERE id = $1 AND status = $6`,
		id, SessionActive, gameID, version, startedAt, SessionPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("start session %s: %w", id, ErrConflict)
	}
	return nil
}

func (s *Store) FinishSession(ctx context.Context, id, status string, winnerIDs []string, endedAt time.Time) error {
	if winnerIDs == nil {
		winnerIDs = []string{}
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE sessions SET status = $2, winner_ids = $3, ended_at = $4
		WHERE id = $1 AND status IN ($5, $6)`,
		id, status, winnerIDs, endedAt, SessionPending, SessionActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish session %s: %w", id, ErrConflict)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, sessionID string) ([]Member, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT session_id, player_id, status, invited_by, created_at, updated_at
		FROM members WHERE session_id = $1
		ORDER BY created_at, player_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Member{}
	for rows.Next() {
		var m Member
		var invitedBy pgtype.Text
		if err := rows.Scan(&m.SessionID, &m.PlayerID, &m.Status, &invitedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.InvitedBy = textVal(invitedBy)
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertInvite adds a pending member. Inviting an existing member is a conflict.
func (s *Store) InsertInvite(ctx context.Context, m Member) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO members (session_id, player_id, status, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		m.SessionID, m.PlayerID, m.Status, textParam(m.InvitedBy), m.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) UpdateMemberStatus(ctx context.Context, sessionID, playerID, status string, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE members SET status = $3, updated_at = $4
		WHERE session_id = $1 AND player_id = $2`,
		sessionID, playerID, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
