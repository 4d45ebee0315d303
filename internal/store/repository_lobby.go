package store

import "context"

func (s *Store) SetReady(ctx context.Context, sessionID, playerID string, ready bool) error {
	if ready {
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO ready_players (session_id, player_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, sessionID, playerID)
		return err
	}
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM ready_players WHERE session_id = $1 AND player_id = $2`, sessionID, playerID)
	return err
}

func (s *Store) ListReady(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT player_id FROM ready_players WHERE session_id = $1 ORDER BY player_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SetVote(ctx context.Context, sessionID, playerID, gameID string, remove bool) error {
	if remove {
		_, err := s.Pool.Exec(ctx,
			`DELETE FROM game_votes WHERE session_id = $1 AND player_id = $2 AND game_id = $3`,
			sessionID, playerID, gameID)
		return err
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO game_votes (session_id, player_id, game_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, sessionID, playerID, gameID)
	return err
}

func (s *Store) ListVotes(ctx context.Context, sessionID string) ([]Vote, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT player_id, game_id FROM game_votes WHERE session_id = $1 ORDER BY game_id, player_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Vote{}
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.PlayerID, &v.GameID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
