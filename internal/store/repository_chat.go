package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func (s *Store) InsertChat(ctx context.Context, m ChatMessage) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, author_id, content, round_index, scene_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SessionID, m.AuthorID, m.Content, m.RoundIndex, textParam(m.SceneID), m.CreatedAt)
	return err
}

func (s *Store) ChatMessageExists(ctx context.Context, sessionID, messageID string) (bool, error) {
	var ok bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_messages WHERE session_id = $1 AND id = $2)`,
		sessionID, messageID).Scan(&ok)
	return ok, err
}

// ListChat returns up to limit messages newest first, older than before when
// set, optionally restricted to one scene.
func (s *Store) ListChat(ctx context.Context, sessionID, sceneID string, before *ChatCursor, limit int) ([]ChatMessage, string, error) {
	args := []any{sessionID, textParam(sceneID), limit + 1}
	where := `session_id = $1 AND ($2::text IS NULL OR scene_id = $2)`
	if before != nil {
		where += ` AND (created_at, id) < ($4, $5)`
		args = append(args, before.CreatedAt, before.ID)
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, session_id, author_id, content, round_index, scene_id, created_at
		FROM chat_messages WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	msgs := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var scene pgtype.Text
		if err := rows.Scan(&m.ID, &m.SessionID, &m.AuthorID, &m.Content, &m.RoundIndex, &scene, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		m.SceneID = textVal(scene)
		m.CreatedAt = m.CreatedAt.UTC()
		m.Reactions = []Reaction{}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	msgs, next := Page(msgs, limit)
	if err := s.attachReactions(ctx, msgs); err != nil {
		return nil, "", err
	}
	return msgs, next, nil
}

func (s *Store) attachReactions(ctx context.Context, msgs []ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT message_id, kind, player_id FROM chat_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, player_id`, ids)
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
	grouped := GroupReactions(triples)
	for i := range msgs {
		if r, ok := grouped[msgs[i].ID]; ok {
			msgs[i].Reactions = r
		}
	}
	return nil
}

// SetReaction flips membership of (message, player, kind). It reports whether
// anything changed; at orders the reaction among others on the message.
func (s *Store) SetReaction(ctx context.Context, messageID, playerID, kind string, on bool, at time.Time) (bool, error) {
	if on {
		tag, err := s.Pool.Exec(ctx, `
			INSERT INTO chat_reactions (message_id, player_id, kind, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (message_id, player_id, kind) DO NOTHING`,
			messageID, playerID, kind, at)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	}
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM chat_reactions WHERE message_id = $1 AND player_id = $2 AND kind = $3`,
		messageID, playerID, kind)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
