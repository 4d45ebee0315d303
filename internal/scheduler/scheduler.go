// Package scheduler runs delayed tasks for one owner (a session) on top of a
// durable task table and a single wake-up timer. Delivery is at-least-once:
// a task row is deleted only after its handler returns nil.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

// TaskStore is the durable half. DueTasks returns tasks scheduled at or before
// now in ascending ScheduledAt order.
type TaskStore interface {
	UpsertTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id string) error
	DueTasks(ctx context.Context, now time.Time) ([]Task, error)
	NextTask(ctx context.Context) (Task, bool, error)
}

// WakeTimer is the single alarm an owner gets. Arming replaces any earlier
// arming.
type WakeTimer interface {
	ArmAt(at time.Time) error
	Disarm() error
	OnFire(fn func())
}

type Handler func(ctx context.Context, t Task) error

const DefaultRetryDelay = 30 * time.Second

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithRetryDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.retryDelay = d }
}

func WithIDFunc(fn func() string) Option {
	return func(s *Scheduler) { s.newID = fn }
}

func WithOwner(owner string) Option {
	return func(s *Scheduler) { s.owner = owner }
}

// Scheduler is driven by its owner's single writer and is not safe for
// concurrent use.
type Scheduler struct {
	store      TaskStore
	timer      WakeTimer
	clock      clockwork.Clock
	handlers   map[string]Handler
	retryDelay time.Duration
	newID      func() string
	owner      string

	armedAt *time.Time
	seq     int
}

func New(store TaskStore, timer WakeTimer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		timer:      timer,
		clock:      clockwork.NewRealClock(),
		handlers:   map[string]Handler{},
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newID == nil {
		s.newID = s.sequentialID
	}
	return s
}

func (s *Scheduler) sequentialID() string {
	s.seq++
	return fmt.Sprintf("task_%d_%d", s.clock.Now().UnixNano(), s.seq)
}

func (s *Scheduler) Handle(taskType string, h Handler) {
	s.handlers[taskType] = h
}

// ArmedAt reports the instant the wake timer is armed for, if any.
func (s *Scheduler) ArmedAt() (time.Time, bool) {
	if s.armedAt == nil {
		return time.Time{}, false
	}
	return *s.armedAt, true
}

// Schedule stores a task for at. A non-empty stableID replaces any pending
// task with the same id, which keeps at most one instance of recurring work.
func (s *Scheduler) Schedule(ctx context.Context, at time.Time, taskType string, data any, stableID string) (Task, error) {
	raw, err := encodeData(data)
	if err != nil {
		return Task{}, fmt.Errorf("encode task data: %w", err)
	}
	id := stableID
	if id == "" {
		id = s.newID()
	}
	t := Task{ID: id, Type: taskType, Data: raw, ScheduledAt: at}
	if err := s.store.UpsertTask(ctx, t); err != nil {
		return Task{}, fmt.Errorf("upsert task %s: %w", id, err)
	}
	if s.armedAt == nil || s.armedAt.After(at) {
		if err := s.arm(at); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Cancel removes a pending task. The wake stays armed; a wake with nothing
// due is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// Restore arms the timer for the earliest stored task. Owners call it after
// loading, since timer state does not survive a restart.
func (s *Scheduler) Restore(ctx context.Context) error {
	s.armedAt = nil
	return s.rearm(ctx, nil)
}

// OnWake runs every due task. Failed tasks stay stored and are retried on a
// later wake; their errors come back together as a *BatchError.
func (s *Scheduler) OnWake(ctx context.Context) error {
	s.armedAt = nil
	wakesTotal.Inc()
	now := s.clock.Now()
	due, err := s.store.DueTasks(ctx, now)
	if err != nil {
		if armErr := s.arm(now.Add(s.retryDelay)); armErr != nil {
			return errors.Join(err, armErr)
		}
		return fmt.Errorf("load due tasks: %w", err)
	}

	var batch BatchError
	for _, t := range due {
		h, ok := s.handlers[t.Type]
		if !ok {
			log.Warn().Str("owner", s.owner).Str("task_id", t.ID).Str("task_type", t.Type).Msg("dropping task with unknown type")
			if err := s.store.DeleteTask(ctx, t.ID); err != nil {
				batch.add(t, err)
			}
			continue
		}
		if err := h(ctx, t); err != nil {
			taskFailures.WithLabelValues(t.Type).Inc()
			log.Error().Err(err).Str("owner", s.owner).Str("task_id", t.ID).Str("task_type", t.Type).Msg("task failed")
			batch.add(t, err)
			continue
		}
		tasksRun.WithLabelValues(t.Type).Inc()
		if err := s.store.DeleteTask(ctx, t.ID); err != nil {
			batch.add(t, err)
		}
	}

	if err := s.rearm(ctx, &now); err != nil {
		batch.add(Task{}, err)
	}
	if len(batch.Failures) > 0 {
		return &batch
	}
	return nil
}

// rearm arms for the earliest remaining task. A task already due at this
// point failed during this wake and is retried after the retry delay.
func (s *Scheduler) rearm(ctx context.Context, now *time.Time) error {
	next, ok, err := s.store.NextTask(ctx)
	if err != nil {
		return fmt.Errorf("load next task: %w", err)
	}
	if !ok {
		if s.armedAt == nil {
			return s.timer.Disarm()
		}
		return nil
	}
	at := next.ScheduledAt
	if now != nil && !at.After(*now) {
		at = now.Add(s.retryDelay)
	}
	if s.armedAt != nil && !s.armedAt.After(at) {
		return nil
	}
	return s.arm(at)
}

func (s *Scheduler) arm(at time.Time) error {
	if err := s.timer.ArmAt(at); err != nil {
		return fmt.Errorf("arm wake timer: %w", err)
	}
	s.armedAt = &at
	return nil
}

func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

type TaskFailure struct {
	TaskID   string
	TaskType string
	Err      error
}

// BatchError aggregates the failures of one wake.
type BatchError struct {
	Failures []TaskFailure
}

func (b *BatchError) add(t Task, err error) {
	b.Failures = append(b.Failures, TaskFailure{TaskID: t.ID, TaskType: t.Type, Err: err})
}

func (b *BatchError) Error() string {
	parts := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		if f.TaskID == "" {
			parts = append(parts, f.Err.Error())
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%s): %v", f.TaskType, f.TaskID, f.Err))
	}
	return fmt.Sprintf("%d task(s) failed: %s", len(b.Failures), strings.Join(parts, "; "))
}

func (b *BatchError) Unwrap() []error {
	out := make([]error, 0, len(b.Failures))
	for _, f := range b.Failures {
		out = append(out, f.Err)
	}
	return out
}
