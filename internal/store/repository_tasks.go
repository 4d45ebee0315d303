package store

import (
	"context"
	"errors"
	"time"

	"roundtable/internal/scheduler"

	"github.com/jackc/pgx/v5"
)

func (s *Store) UpsertTask(ctx context.Context, sessionID string, t scheduler.Task) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO scheduled_tasks (session_id, id, type, data, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, id)
		DO UPDATE SET type = EXCLUDED.type, data = EXCLUDED.data, scheduled_at = EXCLUDED.scheduled_at`,
		sessionID, t.ID, t.Type, []byte(t.Data), t.ScheduledAt)
	return err
}

func (s *Store) DeleteTask(ctx context.Context, sessionID, id string) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM scheduled_tasks WHERE session_id = $1 AND id = $2`, sessionID, id)
	return err
}

func (s *Store) DueTasks(ctx context.Context, sessionID string, now time.Time) ([]scheduler.Task, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, type, data, scheduled_at FROM scheduled_tasks
		WHERE session_id = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at, id`, sessionID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []scheduler.Task{}
	for rows.Next() {
		var t scheduler.Task
		var data []byte
		if err := rows.Scan(&t.ID, &t.Type, &data, &t.ScheduledAt); err != nil {
			return nil, err
		}
		t.Data = data
		t.ScheduledAt = t.ScheduledAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) NextTask(ctx context.Context, sessionID string) (scheduler.Task, bool, error) {
	var t scheduler.Task
	var data []byte
	err := s.Pool.QueryRow(ctx, `
		SELECT id, type, data, scheduled_at FROM scheduled_tasks
		WHERE session_id = $1
		ORDER BY scheduled_at, id LIMIT 1`, sessionID,
	).Scan(&t.ID, &t.Type, &data, &t.ScheduledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduler.Task{}, false, nil
	}
	if err != nil {
		return scheduler.Task{}, false, err
	}
	t.Data = data
	t.ScheduledAt = t.ScheduledAt.UTC()
	return t, true, nil
}

// SessionsWithTasks lists sessions that have pending tasks, so a restarted
// process can re-arm their timers.
func (s *Store) SessionsWithTasks(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT DISTINCT session_id FROM scheduled_tasks ORDER BY session_id`)
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
