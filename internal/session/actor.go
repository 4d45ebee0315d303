// Package session hosts the per-session actor: the single writer that owns a
// session's lobby, turns, chat and scheduled work.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/scheduler"
	"roundtable/internal/store"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	TaskRoundCheck    = "round_check"
	TaskTurnReminder  = "turn_reminder"
	TaskInviteExpiry  = "invite_expiry"
	TaskArchive       = "archive_session"
	archiveTaskID     = "archive_session"
	chatPageSize      = 50
	maxChatRunes      = 2000
	maxReactionLength = 32
)

type Config struct {
	TurnReminderAfter time.Duration
	InviteTTL         time.Duration
	// Location is the default time zone for new sessions.
	Location *time.Location
	// EventBuffer bounds the replay ring per session.
	EventBuffer int
}

type Deps struct {
	Store    Store
	Games    *game.Registry
	Clock    clockwork.Clock
	Notifier Notifier
	Archiver Archiver
	Config   Config
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Notifier == nil {
		d.Notifier = LogNotifier{}
	}
	if d.Config.Location == nil {
		d.Config.Location = time.UTC
	}
	return d
}

// Actor coordinates one session. Every method must be called from the
// session's mailbox goroutine; Host provides that.
type Actor struct {
	id   string
	deps Deps
	snap Snapshot

	def    game.Definition
	loc    *time.Location
	roster []string
	cache  *game.StateCache
	// round is the current round index, -1 until the game starts.
	round     int
	nextCheck *time.Time

	sched  *scheduler.Scheduler
	events *Broadcaster
}

// CreateParams describes a new session. GameID is optional; without it the
// members vote.
type CreateParams struct {
	CreatorID string
	GameID    string
	TimeZone  string
}

// Create persists a pending session with the creator as its first accepted
// member.
func Create(ctx context.Context, deps Deps, p CreateParams) (store.Session, error) {
	deps = deps.withDefaults()
	if strings.TrimSpace(p.CreatorID) == "" {
		return store.Session{}, fmt.Errorf("%w: creator is required", ErrInvalidRequest)
	}
	tz := p.TimeZone
	if tz == "" {
		tz = deps.Config.Location.String()
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return store.Session{}, fmt.Errorf("%w: %s", ErrInvalidTimeZone, tz)
	}
	sess := store.Session{
		ID:        store.NewID(),
		Status:    store.SessionPending,
		CreatorID: p.CreatorID,
		Seed:      store.NewSeed(),
		TimeZone:  tz,
		CreatedAt: now(deps.Clock),
	}
	if p.GameID != "" {
		def, err := deps.Games.Get(p.GameID, 0)
		if err != nil {
			return store.Session{}, err
		}
		sess.GameID = game.NormalizeID(def.ID())
		sess.GameVersion = def.Version()
	}
	if err := deps.Store.CreateSession(ctx, sess); err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	log.Info().
		Str("session_id", sess.ID).
		Str("creator_id", sess.CreatorID).
		Str("game_id", sess.GameID).
		Msg("session created")
	return sess, nil
}

// Load rebuilds an actor from the store and re-arms its scheduled work.
func Load(ctx context.Context, deps Deps, sessionID string, timer scheduler.WakeTimer) (*Actor, error) {
	deps = deps.withDefaults()
	sess, err := deps.Store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	members, err := deps.Store.ListMembers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	ready, err := deps.Store.ListReady(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load ready: %w", err)
	}
	votes, err := deps.Store.ListVotes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	turns, err := deps.Store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	sortTurns(turns)

	a := &Actor{
		id:     sessionID,
		deps:   deps,
		snap:   Snapshot{Session: *sess, Members: members, Ready: ready, Votes: votes, Turns: turns},
		round:  -1,
		events: NewBroadcaster(sessionID, deps.Clock, deps.Config.EventBuffer),
	}
	a.sched = scheduler.New(taskStore{st: deps.Store, sessionID: sessionID}, timer,
		scheduler.WithClock(deps.Clock),
		scheduler.WithIDFunc(store.NewID),
		scheduler.WithOwner(sessionID),
	)
	a.sched.Handle(TaskRoundCheck, a.handleRoundCheck)
	a.sched.Handle(TaskTurnReminder, a.handleTurnReminder)
	a.sched.Handle(TaskInviteExpiry, a.handleInviteExpiry)
	a.sched.Handle(TaskArchive, a.handleArchive)

	if sess.Status != store.SessionPending {
		if err := a.bindGame(); err != nil {
			return nil, err
		}
		if sess.Status == store.SessionActive {
			a.round = a.decide().RoundIndex
			if _, err := a.checkCompletion(ctx); err != nil {
				return nil, err
			}
		} else {
			a.round = a.lastPlayedRound() + 1
		}
	}
	if err := a.sched.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore scheduler: %w", err)
	}
	// Re-announces the pending round check and catches up rounds that closed
	// while nobody hosted the session.
	if err := a.advance(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Actor) ID() string { return a.id }

func (a *Actor) Snapshot() Snapshot { return a.snap }

func (a *Actor) Events() *Broadcaster { return a.events }

// Round reports the current round index, -1 before the game starts.
func (a *Actor) Round() int { return a.round }

// CacheStats exposes the state cache counters, zero before the game starts.
func (a *Actor) CacheStats() game.CacheStats {
	if a.cache == nil {
		return game.CacheStats{LastBaseRound: -1}
	}
	return a.cache.Stats()
}

// OnWake runs due tasks. The host calls it from the mailbox when the wake
// timer fires.
func (a *Actor) OnWake(ctx context.Context) error {
	return a.sched.OnWake(ctx)
}

// Close stops notifying subscribers. Durable tasks stay queued.
func (a *Actor) Close() {
	a.events.Close()
}

func now(c clockwork.Clock) time.Time {
	return c.Now().UTC().Truncate(time.Microsecond)
}

func (a *Actor) now() time.Time { return now(a.deps.Clock) }

func (a *Actor) apply(e Event) {
	a.snap = Apply(a.snap, e)
}

func (a *Actor) broadcast(typ string, data any) {
	a.events.Append(typ, data)
}

func (a *Actor) bindGame() error {
	s := a.snap.Session
	def, err := a.deps.Games.Get(s.GameID, s.GameVersion)
	if err != nil {
		return fmt.Errorf("bind game %s@%d: %w", s.GameID, s.GameVersion, err)
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		loc = a.deps.Config.Location
	}
	a.def = def
	a.loc = loc
	a.roster = a.snap.Roster()
	a.cache = game.NewStateCache(def, s.Seed, a.roster)
	return nil
}

func (a *Actor) decide() game.RoundDecision {
	started := a.snap.Session.CreatedAt
	if a.snap.Session.StartedAt != nil {
		started = *a.snap.Session.StartedAt
	}
	return a.def.RoundIndexDecider(a.loc).Decide(game.DecideInput{
		Now:       a.deps.Clock.Now(),
		StartedAt: started,
		Members:   a.roster,
		Turns:     a.snap.Turns,
	})
}

func (a *Actor) lastPlayedRound() int {
	last := -1
	for _, t := range a.snap.Turns {
		if t.RoundIndex > last {
			last = t.RoundIndex
		}
	}
	return last
}

// closedRounds returns every round before the current one, padded so rounds
// nobody played still count.
func (a *Actor) closedRounds() []game.Round {
	return game.RoundsThrough(game.GroupRounds(a.snap.Turns), a.round-1)
}

func (a *Actor) requireMember(playerID string) error {
	if !a.snap.IsAccepted(playerID) {
		return ErrNotAMember
	}
	return nil
}

func (a *Actor) requirePending() error {
	switch a.snap.Session.Status {
	case store.SessionPending:
		return nil
	case store.SessionActive:
		return ErrSessionAlreadyStarted
	default:
		return ErrSessionFinished
	}
}

func (a *Actor) requireActive() error {
	switch a.snap.Session.Status {
	case store.SessionActive:
		return nil
	case store.SessionPending:
		return ErrSessionNotActive
	default:
		return ErrSessionFinished
	}
}
