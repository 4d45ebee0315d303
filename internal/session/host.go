package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"roundtable/internal/lease"
	"roundtable/internal/scheduler"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultIdleTimeout = 5 * time.Minute
	mailboxSize        = 64
)

type HostOptions struct {
	// NodeID identifies this process to the lease.
	NodeID string
	// IdleTimeout evicts actors with no subscribers and no calls for this long.
	IdleTimeout time.Duration
	// LeaseTTL defaults to twice the idle timeout.
	LeaseTTL time.Duration
	Lease    lease.Lease
	// Timers builds the wake timer of one session.
	Timers func(sessionID string) scheduler.WakeTimer
	// Cron runs the janitor. Without it the caller must invoke Sweep.
	Cron gocron.Scheduler
}

type call struct {
	fn   func(context.Context, *Actor) error
	done chan error
}

type hosted struct {
	actor   *Actor
	mailbox chan call
	stop    chan struct{}
	stopped chan struct{}
	// ready closes when the load finished; loadErr is set if it failed.
	ready   chan struct{}
	loadErr error
	// gone closes once the actor stopped and its lease was released. Until
	// then a new activation of the session waits.
	gone     chan struct{}
	draining bool
	inflight int
	lastUsed time.Time
	subs     int
}

// Host keeps at most one live actor per session and runs each on its own
// mailbox goroutine, so actor code never needs locks.
type Host struct {
	deps Deps
	opts HostOptions
	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	closed  bool
	actors  map[string]*hosted
	timers  map[string]scheduler.WakeTimer
	janitor gocron.Job
	// sweepMu serializes sweeps so lease renewals never race an eviction.
	sweepMu sync.Mutex
}

func NewHost(deps Deps, opts HostOptions) *Host {
	deps = deps.withDefaults()
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 2 * opts.IdleTimeout
	}
	if opts.Lease == nil {
		opts.Lease = lease.NewLocal(deps.Clock)
	}
	if opts.NodeID == "" {
		opts.NodeID = "node-" + fmt.Sprint(deps.Clock.Now().UnixNano())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		deps:   deps,
		opts:   opts,
		ctx:    ctx,
		stop:   cancel,
		actors: map[string]*hosted{},
		timers: map[string]scheduler.WakeTimer{},
	}
}

func (h *Host) Deps() Deps { return h.deps }

// Start registers the janitor and re-activates every session with queued
// tasks so their wake timers are armed again.
func (h *Host) Start(ctx context.Context) error {
	if h.opts.Cron != nil {
		interval := max(h.opts.IdleTimeout/2, time.Second)
		job, err := h.opts.Cron.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(h.Sweep),
			gocron.WithName("session-janitor"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		h.janitor = job
	}
	ids, err := h.deps.Store.SessionsWithTasks(ctx)
	if err != nil {
		return fmt.Errorf("list sessions with tasks: %w", err)
	}
	for _, id := range ids {
		hs, err := h.activate(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("restore session failed")
			continue
		}
		h.release(hs)
	}
	log.Info().Int("sessions", len(ids)).Msg("session host started")
	return nil
}

// Do runs fn on the session's mailbox goroutine, loading the actor first if
// needed.
func (h *Host) Do(ctx context.Context, sessionID string, fn func(context.Context, *Actor) error) error {
	for attempt := 0; attempt < 3; attempt++ {
		hs, err := h.activate(ctx, sessionID)
		if err != nil {
			return err
		}
		delivered, err := h.send(ctx, hs, fn)
		h.release(hs)
		if delivered {
			return err
		}
	}
	return ErrActorClosed
}

// send hands fn to the mailbox. It reports false when the actor stopped
// before running fn, so the caller may retry on a fresh activation.
func (h *Host) send(ctx context.Context, hs *hosted, fn func(context.Context, *Actor) error) (bool, error) {
	c := call{fn: fn, done: make(chan error, 1)}
	select {
	case hs.mailbox <- c:
	case <-hs.stopped:
		return false, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
	select {
	case err := <-c.done:
		return true, err
	case <-hs.stopped:
		select {
		case err := <-c.done:
			return true, err
		default:
			return false, nil
		}
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

func (h *Host) release(hs *hosted) {
	h.mu.Lock()
	hs.inflight--
	hs.lastUsed = h.deps.Clock.Now()
	h.mu.Unlock()
}

// Subscription is a live feed of one session's notifications.
type Subscription struct {
	C      chan Notification
	Replay []Notification
	// Resync is set when the requested replay point is gone.
	Resync bool
	cancel func()
}

func (s *Subscription) Close() { s.cancel() }

// Subscribe attaches a member to the session feed. Notifications after
// lastEventID are returned in Replay.
func (h *Host) Subscribe(ctx context.Context, sessionID, playerID, lastEventID string) (*Subscription, error) {
	var sub *Subscription
	err := h.Do(ctx, sessionID, func(_ context.Context, a *Actor) error {
		if _, ok := a.snap.Member(playerID); !ok {
			return ErrNotAMember
		}
		replay, ok := a.events.ReplayAfter(lastEventID)
		ch := a.events.Subscribe()
		events := a.events
		sub = &Subscription{C: ch, Replay: replay, Resync: !ok}
		h.mu.Lock()
		if hs := h.actors[sessionID]; hs != nil && hs.actor == a {
			hs.subs++
		}
		h.mu.Unlock()
		var once sync.Once
		sub.cancel = func() {
			once.Do(func() {
				events.Unsubscribe(ch)
				h.mu.Lock()
				if hs := h.actors[sessionID]; hs != nil && hs.actor == a {
					hs.subs--
					hs.lastUsed = h.deps.Clock.Now()
				}
				h.mu.Unlock()
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Active counts running actors.
func (h *Host) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, hs := range h.actors {
		if hs.actor != nil && !hs.draining {
			n++
		}
	}
	return n
}

// activate returns the running actor of sessionID with one call reserved on
// it; the caller must release it. Loading happens without h.mu held so a slow
// session never blocks the others.
func (h *Host) activate(ctx context.Context, sessionID string) (*hosted, error) {
	for {
		h.mu.Lock()
		hs, ok := h.actors[sessionID]
		if !ok {
			return h.load(ctx, sessionID)
		}
		switch {
		case hs.draining:
			h.mu.Unlock()
			if err := waitFor(ctx, hs.gone); err != nil {
				return nil, err
			}
		case hs.actor != nil:
			hs.inflight++
			hs.lastUsed = h.deps.Clock.Now()
			h.mu.Unlock()
			return hs, nil
		default:
			h.mu.Unlock()
			if err := waitFor(ctx, hs.ready); err != nil {
				return nil, err
			}
			// A load cancelled by its own caller is retried by this one.
			if hs.loadErr != nil && !errors.Is(hs.loadErr, context.Canceled) && !errors.Is(hs.loadErr, context.DeadlineExceeded) {
				return nil, hs.loadErr
			}
		}
	}
}

// load claims the session with a placeholder entry and builds its actor. It
// is called with h.mu held and returns with it released.
func (h *Host) load(ctx context.Context, sessionID string) (*hosted, error) {
	if h.closed {
		h.mu.Unlock()
		return nil, ErrActorClosed
	}
	hs := &hosted{
		mailbox: make(chan call, mailboxSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		ready:   make(chan struct{}),
		gone:    make(chan struct{}),
	}
	h.actors[sessionID] = hs
	timer := h.timerLocked(sessionID)
	h.mu.Unlock()

	actor, err := h.loadActor(ctx, sessionID, timer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil && h.closed {
		actor.Close()
		h.releaseLease(sessionID)
		err = ErrActorClosed
	}
	if err != nil {
		delete(h.actors, sessionID)
		hs.loadErr = err
		close(hs.ready)
		close(hs.gone)
		return nil, err
	}
	hs.actor = actor
	hs.inflight = 1
	hs.lastUsed = h.deps.Clock.Now()
	close(hs.ready)
	activeActors.Inc()
	go h.run(hs)
	log.Debug().Str("session_id", sessionID).Str("node_id", h.opts.NodeID).Msg("actor activated")
	return hs, nil
}

func (h *Host) loadActor(ctx context.Context, sessionID string, timer scheduler.WakeTimer) (*Actor, error) {
	if err := h.opts.Lease.Acquire(ctx, sessionID, h.opts.NodeID, h.opts.LeaseTTL); err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return nil, ErrSessionBusy
		}
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	actor, err := Load(ctx, h.deps, sessionID, timer)
	if err != nil {
		h.releaseLease(sessionID)
		return nil, err
	}
	return actor, nil
}

func waitFor(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// timerLocked returns the session's wake timer. Timers outlive actors so a
// wake armed before eviction reactivates the session.
func (h *Host) timerLocked(sessionID string) scheduler.WakeTimer {
	if t, ok := h.timers[sessionID]; ok {
		return t
	}
	var t scheduler.WakeTimer
	if h.opts.Timers != nil {
		t = h.opts.Timers(sessionID)
	} else {
		t = noopTimer{}
	}
	t.OnFire(func() { h.wake(sessionID) })
	h.timers[sessionID] = t
	return t
}

func (h *Host) wake(sessionID string) {
	err := h.Do(h.ctx, sessionID, func(ctx context.Context, a *Actor) error {
		return a.OnWake(ctx)
	})
	if err != nil && h.ctx.Err() == nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("session wake failed")
	}
}

func (h *Host) run(hs *hosted) {
	defer close(hs.stopped)
	for {
		select {
		case c := <-hs.mailbox:
			c.done <- c.fn(h.ctx, hs.actor)
		case <-hs.stop:
			return
		}
	}
}

type hostedEntry struct {
	id string
	hs *hosted
}

// Sweep renews leases of live actors and evicts idle ones. An actor with a
// call in flight is never idle.
func (h *Host) Sweep() {
	h.sweepMu.Lock()
	defer h.sweepMu.Unlock()

	now := h.deps.Clock.Now()
	var evict, live []hostedEntry
	h.mu.Lock()
	for id, hs := range h.actors {
		if hs.actor == nil || hs.draining {
			continue
		}
		if hs.subs == 0 && hs.inflight == 0 && now.Sub(hs.lastUsed) >= h.opts.IdleTimeout {
			h.drainLocked(hs)
			evict = append(evict, hostedEntry{id, hs})
			continue
		}
		live = append(live, hostedEntry{id, hs})
	}
	h.mu.Unlock()

	var lost []hostedEntry
	for _, e := range live {
		if err := h.renew(e.id); err != nil {
			log.Warn().Err(err).Str("session_id", e.id).Msg("lease lost, evicting actor")
			lost = append(lost, e)
		}
	}
	if len(lost) > 0 {
		h.mu.Lock()
		for _, e := range lost {
			if h.actors[e.id] == e.hs && !e.hs.draining {
				h.drainLocked(e.hs)
				evict = append(evict, e)
			}
		}
		h.mu.Unlock()
	}
	for _, e := range evict {
		h.finishEvict(e.id, e.hs)
	}
}

// renew extends the lease, re-claiming it if it lapsed while nobody else
// took it.
func (h *Host) renew(sessionID string) error {
	err := h.opts.Lease.Renew(h.ctx, sessionID, h.opts.NodeID, h.opts.LeaseTTL)
	if errors.Is(err, lease.ErrNotHeld) {
		err = h.opts.Lease.Acquire(h.ctx, sessionID, h.opts.NodeID, h.opts.LeaseTTL)
	}
	return err
}

// drainLocked stops new calls from reaching hs. Calls already queued or
// running finish before the mailbox goroutine exits.
func (h *Host) drainLocked(hs *hosted) {
	hs.draining = true
	close(hs.stop)
}

// finishEvict waits for the mailbox goroutine to exit, then gives up the
// lease and frees the slot for a new activation.
func (h *Host) finishEvict(sessionID string, hs *hosted) {
	<-hs.stopped
	hs.actor.Close()
	h.releaseLease(sessionID)
	h.mu.Lock()
	if h.actors[sessionID] == hs {
		delete(h.actors, sessionID)
	}
	h.mu.Unlock()
	activeActors.Dec()
	close(hs.gone)
	log.Debug().Str("session_id", sessionID).Msg("actor evicted")
}

func (h *Host) releaseLease(sessionID string) {
	if err := h.opts.Lease.Release(context.WithoutCancel(h.ctx), sessionID, h.opts.NodeID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("release lease failed")
	}
}

// Shutdown evicts every actor and stops the janitor. Wake timers stay with
// their owner (the gocron scheduler) and are shut down there.
func (h *Host) Shutdown() {
	if h.janitor != nil && h.opts.Cron != nil {
		_ = h.opts.Cron.RemoveJob(h.janitor.ID())
	}
	h.sweepMu.Lock()
	defer h.sweepMu.Unlock()
	var evict []hostedEntry
	h.mu.Lock()
	h.closed = true
	for id, hs := range h.actors {
		if hs.actor != nil && !hs.draining {
			h.drainLocked(hs)
			evict = append(evict, hostedEntry{id, hs})
		}
	}
	h.mu.Unlock()
	for _, e := range evict {
		h.finishEvict(e.id, e.hs)
	}
	h.stop()
}

type noopTimer struct{}

func (noopTimer) ArmAt(time.Time) error { return nil }
func (noopTimer) Disarm() error         { return nil }
func (noopTimer) OnFire(func())         {}
