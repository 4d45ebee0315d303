// Package wake provides scheduler.WakeTimer implementations backed by one
// shared gocron scheduler.
package wake

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// CronTimers hands out per-owner timers that all run on one gocron scheduler.
type CronTimers struct {
	sched gocron.Scheduler
	clock clockwork.Clock
}

func NewCronTimers(clock clockwork.Clock) (*CronTimers, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("new gocron scheduler: %w", err)
	}
	s.Start()
	return &CronTimers{sched: s, clock: clock}, nil
}

// Scheduler exposes the underlying gocron scheduler for periodic jobs.
func (c *CronTimers) Scheduler() gocron.Scheduler { return c.sched }

func (c *CronTimers) Shutdown() error { return c.sched.Shutdown() }

func (c *CronTimers) Timer(owner string) *Timer {
	return &Timer{parent: c, owner: owner}
}

// Timer is a one-shot alarm. Re-arming removes the previously armed job.
type Timer struct {
	parent *CronTimers
	owner  string

	mu    sync.Mutex
	job   uuid.UUID
	armed bool
	gen   uint64
	fire  func()
}

func (t *Timer) OnFire(fn func()) {
	t.mu.Lock()
	t.fire = fn
	t.mu.Unlock()
}

func (t *Timer) ArmAt(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked()
	t.gen++
	gen := t.gen

	task := gocron.NewTask(t.run, gen)
	name := gocron.WithName("wake:" + t.owner)
	start := gocron.OneTimeJobStartImmediately()
	if at.After(t.parent.clock.Now()) {
		start = gocron.OneTimeJobStartDateTime(at)
	}
	job, err := t.parent.sched.NewJob(gocron.OneTimeJob(start), task, name)
	if errors.Is(err, gocron.ErrOneTimeJobStartDateTimePast) {
		// at slipped into the past between the check and scheduling.
		job, err = t.parent.sched.NewJob(gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), task, name)
	}
	if err != nil {
		return fmt.Errorf("arm %s at %s: %w", t.owner, at.Format(time.RFC3339), err)
	}
	t.job = job.ID()
	t.armed = true
	return nil
}

func (t *Timer) Disarm() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	return t.removeLocked()
}

func (t *Timer) removeLocked() error {
	if !t.armed {
		return nil
	}
	t.armed = false
	err := t.parent.sched.RemoveJob(t.job)
	if errors.Is(err, gocron.ErrJobNotFound) {
		return nil
	}
	return err
}

func (t *Timer) run(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.armed = false
	fn := t.fire
	t.mu.Unlock()
	if fn == nil {
		log.Warn().Str("owner", t.owner).Msg("wake fired with no handler")
		return
	}
	fn()
}
