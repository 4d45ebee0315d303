package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/games/highcard"
	"roundtable/internal/store"
	"roundtable/internal/store/sqlite"

	"github.com/jonboulle/clockwork"
)

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*store.Store)(nil)
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeTimer struct {
	mu     sync.Mutex
	armed  *time.Time
	fire   func()
	armedN int
}

func (f *fakeTimer) ArmAt(at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = &at
	f.armedN++
	return nil
}

func (f *fakeTimer) Disarm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = nil
	return nil
}

func (f *fakeTimer) OnFire(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fire = fn
}

func (f *fakeTimer) armedAt() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed == nil {
		return time.Time{}, false
	}
	return *f.armed, true
}

type reminder struct {
	round   int
	players []string
}

type recordingNotifier struct {
	mu        sync.Mutex
	reminders []reminder
}

func (r *recordingNotifier) RemindTurn(_ context.Context, _ string, round int, players []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders = append(r.reminders, reminder{round: round, players: players})
	return nil
}

type recordingArchiver struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (r *recordingArchiver) Archive(_ context.Context, sessionID string, doc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs == nil {
		r.docs = map[string][]byte{}
	}
	r.docs[sessionID] = doc
	return nil
}

type testEnv struct {
	deps     Deps
	store    *sqlite.Store
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
	archiver *recordingArchiver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	games, err := game.NewRegistry(highcard.New(), highcard.NewDaily())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	env := &testEnv{
		store:    st,
		clock:    clockwork.NewFakeClockAt(testStart),
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
	}
	env.deps = Deps{
		Store:    st,
		Games:    games,
		Clock:    env.clock,
		Notifier: env.notifier,
		Archiver: env.archiver,
		Config: Config{
			TurnReminderAfter: 12 * time.Hour,
			InviteTTL:         72 * time.Hour,
		},
	}
	return env
}

func (e *testEnv) create(t *testing.T, creator, gameID string) store.Session {
	t.Helper()
	sess, err := Create(context.Background(), e.deps, CreateParams{CreatorID: creator, GameID: gameID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func (e *testEnv) load(t *testing.T, sessionID string) (*Actor, *fakeTimer) {
	t.Helper()
	timer := &fakeTimer{}
	a, err := Load(context.Background(), e.deps, sessionID, timer)
	if err != nil {
		t.Fatalf("load actor: %v", err)
	}
	t.Cleanup(a.Close)
	return a, timer
}

// startedGame builds an active session seated with players, creator first.
func (e *testEnv) startedGame(t *testing.T, gameID string, players ...string) *Actor {
	t.Helper()
	ctx := context.Background()
	sess := e.create(t, players[0], gameID)
	a, _ := e.load(t, sess.ID)
	for _, p := range players[1:] {
		if _, err := a.Invite(ctx, players[0], p); err != nil {
			t.Fatalf("invite %s: %v", p, err)
		}
		if _, err := a.RespondInvite(ctx, p, true); err != nil {
			t.Fatalf("accept %s: %v", p, err)
		}
	}
	for _, p := range players {
		if err := a.ReadyUp(ctx, p, false); err != nil {
			t.Fatalf("ready %s: %v", p, err)
		}
	}
	if a.Snapshot().Session.Status != store.SessionActive {
		t.Fatalf("expected active session, got %s", a.Snapshot().Session.Status)
	}
	return a
}

func hand(t *testing.T, a *Actor, playerID string) []string {
	t.Helper()
	view, err := a.GetState(context.Background(), playerID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	var pv highcard.PlayerView
	if err := json.Unmarshal(view.PlayerState, &pv); err != nil {
		t.Fatalf("decode player state: %v", err)
	}
	return pv.Hand
}

func cardTurn(card string) json.RawMessage {
	b, _ := json.Marshal(highcard.TurnData{Card: card})
	return b
}

func drain(ch chan Notification) []Notification {
	var out []Notification
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

func types(ns []Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Type)
	}
	return out
}
