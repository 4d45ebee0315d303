package store

import (
	"context"
	"encoding/json"
	"errors"

	"roundtable/internal/game"

	"github.com/jackc/pgx/v5"
)

func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]game.Turn, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, session_id, player_id, round_index, data, created_at
		FROM turns WHERE session_id = $1
		ORDER BY round_index, created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []game.Turn{}
	for rows.Next() {
		var t game.Turn
		var data string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.PlayerID, &t.RoundIndex, &data, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Data = json.RawMessage(data)
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTurn writes the player's turn for a round in one statement. A
// resubmission replaces data and created_at and keeps the row id; an
// identical payload leaves the row untouched.
func (s *Store) UpsertTurn(ctx context.Context, t game.Turn) (game.Turn, TurnWrite, error) {
	var stored game.Turn
	var data string
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO turns (id, session_id, player_id, round_index, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, player_id, round_index)
		DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at
		WHERE turns.data <> EXCLUDED.data
		RETURNING id, session_id, player_id, round_index, data, created_at`,
		t.ID, t.SessionID, t.PlayerID, t.RoundIndex, string(t.Data), t.CreatedAt,
	).Scan(&stored.ID, &stored.SessionID, &stored.PlayerID, &stored.RoundIndex, &data, &stored.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.getTurn(ctx, t.SessionID, t.PlayerID, t.RoundIndex)
		return existing, TurnUnchanged, err
	}
	if err != nil {
		return game.Turn{}, 0, err
	}
	stored.Data = json.RawMessage(data)
	stored.CreatedAt = stored.CreatedAt.UTC()
	if stored.ID != t.ID {
		return stored, TurnReplaced, nil
	}
	return stored, TurnInserted, nil
}

func (s *Store) getTurn(ctx context.Context, sessionID, playerID string, round int) (game.Turn, error) {
	var t game.Turn
	var data string
	err := s.Pool.QueryRow(ctx, `
		SELECT id, session_id, player_id, round_index, data, created_at
		FROM turns WHERE session_id = $1 AND player_id = $2 AND round_index = $3`,
		sessionID, playerID, round,
	).Scan(&t.ID, &t.SessionID, &t.PlayerID, &t.RoundIndex, &data, &t.CreatedAt)
	if err != nil {
		return game.Turn{}, mapNotFound(err)
	}
	t.Data = json.RawMessage(data)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
