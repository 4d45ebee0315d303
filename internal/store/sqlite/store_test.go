package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/scheduler"
	"roundtable/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "roundtable.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createSession(t *testing.T, st *Store, creator string, at time.Time) store.Session {
	t.Helper()
	sess := store.Session{
		ID:        store.NewID(),
		Status:    store.SessionPending,
		CreatorID: creator,
		Seed:      "seed",
		TimeZone:  "UTC",
		CreatedAt: at,
	}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSessionLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, st, "alice", base)

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.SessionPending || got.StartedAt != nil || len(got.WinnerIDs) != 0 {
		t.Fatalf("unexpected pending session %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Fatalf("created_at = %v", got.CreatedAt)
	}

	invite := store.Member{SessionID: sess.ID, PlayerID: "bob", Status: store.MemberPending, InvitedBy: "alice", CreatedAt: base}
	if err := st.InsertInvite(ctx, invite); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := st.InsertInvite(ctx, invite); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate invite err = %v", err)
	}
	if err := st.UpdateMemberStatus(ctx, sess.ID, "bob", store.MemberAccepted, base.Add(time.Minute)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := st.UpdateMemberStatus(ctx, sess.ID, "carol", store.MemberAccepted, base); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown member err = %v", err)
	}
	members, err := st.ListMembers(ctx, sess.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || members[0].PlayerID != "alice" || members[1].InvitedBy != "alice" || members[1].Status != store.MemberAccepted {
		t.Fatalf("members = %+v", members)
	}

	if err := st.StartSession(ctx, sess.ID, "highcard", 1, base.Add(time.Hour)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := st.StartSession(ctx, sess.ID, "highcard", 1, base); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second start err = %v", err)
	}
	if err := st.FinishSession(ctx, sess.ID, store.SessionComplete, []string{"bob"}, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := st.FinishSession(ctx, sess.ID, store.SessionAbandoned, nil, base); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("finish twice err = %v", err)
	}
	got, err = st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.SessionComplete || got.GameID != "highcard" || got.GameVersion != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.WinnerIDs) != 1 || got.WinnerIDs[0] != "bob" {
		t.Fatalf("winners = %v", got.WinnerIDs)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(base.Add(time.Hour)) || got.EndedAt == nil {
		t.Fatalf("timestamps = %v %v", got.StartedAt, got.EndedAt)
	}
	if _, err := st.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing session err = %v", err)
	}
}

func TestUpsertTurn(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, st, "alice", base)

	turn := game.Turn{ID: store.NewID(), SessionID: sess.ID, PlayerID: "alice", RoundIndex: 0, Data: json.RawMessage(`{"card":"As"}`), CreatedAt: base}
	if _, w, err := st.UpsertTurn(ctx, turn); err != nil || w != store.TurnInserted {
		t.Fatalf("insert: %v %v", w, err)
	}

	again := turn
	again.ID = store.NewID()
	again.CreatedAt = base.Add(time.Minute)
	stored, w, err := st.UpsertTurn(ctx, again)
	if err != nil || w != store.TurnUnchanged {
		t.Fatalf("identical upsert: %v %v", w, err)
	}
	if stored.ID != turn.ID || !stored.CreatedAt.Equal(base) {
		t.Fatalf("unchanged row mutated: %+v", stored)
	}

	again.Data = json.RawMessage(`{"card":"Kd"}`)
	stored, w, err = st.UpsertTurn(ctx, again)
	if err != nil || w != store.TurnReplaced {
		t.Fatalf("replace: %v %v", w, err)
	}
	if stored.ID != turn.ID || !stored.CreatedAt.Equal(again.CreatedAt) {
		t.Fatalf("replaced row = %+v", stored)
	}

	other := game.Turn{ID: store.NewID(), SessionID: sess.ID, PlayerID: "alice", RoundIndex: 1, Data: json.RawMessage(`{"card":"2c"}`), CreatedAt: base.Add(2 * time.Minute)}
	if _, w, err := st.UpsertTurn(ctx, other); err != nil || w != store.TurnInserted {
		t.Fatalf("next round: %v %v", w, err)
	}

	turns, err := st.ListTurns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 2 || string(turns[0].Data) != `{"card":"Kd"}` || turns[1].RoundIndex != 1 {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestChatPagingAndReactions(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, st, "alice", base)

	var ids []string
	for i := 0; i < 5; i++ {
		m := store.ChatMessage{
			ID:        store.NewID(),
			SessionID: sess.ID,
			AuthorID:  "alice",
			Content:   "hello",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if i%2 == 0 {
			m.SceneID = "lobby"
		}
		if err := st.InsertChat(ctx, m); err != nil {
			t.Fatalf("insert chat: %v", err)
		}
		ids = append(ids, m.ID)
	}

	page, next, err := st.ListChat(ctx, sess.ID, "", nil, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] || next == "" {
		t.Fatalf("page 1 = %+v next=%q", page, next)
	}
	cursor, err := store.DecodeChatCursor(next)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	page, next, err = st.ListChat(ctx, sess.ID, "", cursor, 10)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page) != 3 || page[0].ID != ids[2] || next != "" {
		t.Fatalf("page 2 = %+v next=%q", page, next)
	}

	scene, _, err := st.ListChat(ctx, sess.ID, "lobby", nil, 10)
	if err != nil || len(scene) != 3 {
		t.Fatalf("scene page = %+v err=%v", scene, err)
	}

	if ok, err := st.ChatMessageExists(ctx, sess.ID, ids[0]); err != nil || !ok {
		t.Fatalf("exists = %v %v", ok, err)
	}
	if ok, _ := st.ChatMessageExists(ctx, sess.ID, "nope"); ok {
		t.Fatalf("unknown message reported as existing")
	}

	if changed, err := st.SetReaction(ctx, ids[4], "bob", "like", true, base); err != nil || !changed {
		t.Fatalf("react: %v %v", changed, err)
	}
	if changed, _ := st.SetReaction(ctx, ids[4], "bob", "like", true, base); changed {
		t.Fatalf("duplicate reaction reported a change")
	}
	if _, err := st.SetReaction(ctx, ids[4], "alice", "like", true, base.Add(time.Second)); err != nil {
		t.Fatalf("react alice: %v", err)
	}
	page, _, _ = st.ListChat(ctx, sess.ID, "", nil, 1)
	if len(page[0].Reactions) != 1 || len(page[0].Reactions[0].PlayerIDs) != 2 {
		t.Fatalf("reactions = %+v", page[0].Reactions)
	}
	if changed, _ := st.SetReaction(ctx, ids[4], "bob", "like", false, base); !changed {
		t.Fatalf("remove reaction reported no change")
	}
}

func TestLobbyAndTasks(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, st, "alice", base)

	for _, p := range []string{"bob", "alice", "bob"} {
		if err := st.SetReady(ctx, sess.ID, p, true); err != nil {
			t.Fatalf("ready: %v", err)
		}
	}
	ready, _ := st.ListReady(ctx, sess.ID)
	if len(ready) != 2 || ready[0] != "alice" {
		t.Fatalf("ready = %v", ready)
	}
	_ = st.SetReady(ctx, sess.ID, "bob", false)
	ready, _ = st.ListReady(ctx, sess.ID)
	if len(ready) != 1 {
		t.Fatalf("ready after unready = %v", ready)
	}

	_ = st.SetVote(ctx, sess.ID, "alice", "highcard", false)
	_ = st.SetVote(ctx, sess.ID, "alice", "highcard-daily", false)
	_ = st.SetVote(ctx, sess.ID, "alice", "highcard-daily", true)
	votes, _ := st.ListVotes(ctx, sess.ID)
	if len(votes) != 1 || votes[0].GameID != "highcard" {
		t.Fatalf("votes = %+v", votes)
	}

	tasks := []scheduler.Task{
		{ID: "b", Type: "round_check", ScheduledAt: base.Add(2 * time.Minute)},
		{ID: "a", Type: "turn_reminder", Data: json.RawMessage(`{"player_id":"bob"}`), ScheduledAt: base.Add(time.Minute)},
	}
	for _, task := range tasks {
		if err := st.UpsertTask(ctx, sess.ID, task); err != nil {
			t.Fatalf("upsert task: %v", err)
		}
	}
	next, ok, err := st.NextTask(ctx, sess.ID)
	if err != nil || !ok || next.ID != "a" || string(next.Data) != `{"player_id":"bob"}` {
		t.Fatalf("next = %+v ok=%v err=%v", next, ok, err)
	}
	due, _ := st.DueTasks(ctx, sess.ID, base.Add(90*time.Second))
	if len(due) != 1 || due[0].ID != "a" {
		t.Fatalf("due = %+v", due)
	}
	tasks[1].ScheduledAt = base.Add(3 * time.Minute)
	_ = st.UpsertTask(ctx, sess.ID, tasks[1])
	next, _, _ = st.NextTask(ctx, sess.ID)
	if next.ID != "b" {
		t.Fatalf("next after reschedule = %+v", next)
	}
	sessions, _ := st.SessionsWithTasks(ctx)
	if len(sessions) != 1 || sessions[0] != sess.ID {
		t.Fatalf("sessions with tasks = %v", sessions)
	}
	_ = st.DeleteTask(ctx, sess.ID, "a")
	_ = st.DeleteTask(ctx, sess.ID, "b")
	if _, ok, _ := st.NextTask(ctx, sess.ID); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestReactionsOrderedByGivenTime(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sess := createSession(t, st, "alice", base)
	m := store.ChatMessage{ID: store.NewID(), SessionID: sess.ID, AuthorID: "alice", Content: "gg", CreatedAt: base}
	if err := st.InsertChat(ctx, m); err != nil {
		t.Fatalf("insert chat: %v", err)
	}

	// Inserted out of order; the supplied instants decide the order.
	if _, err := st.SetReaction(ctx, m.ID, "alice", "like", true, base.Add(2*time.Second)); err != nil {
		t.Fatalf("react alice: %v", err)
	}
	if _, err := st.SetReaction(ctx, m.ID, "zed", "like", true, base.Add(time.Second)); err != nil {
		t.Fatalf("react zed: %v", err)
	}
	page, _, err := st.ListChat(ctx, sess.ID, "", nil, 1)
	if err != nil {
		t.Fatalf("list chat: %v", err)
	}
	if len(page) != 1 || len(page[0].Reactions) != 1 {
		t.Fatalf("reactions = %+v", page)
	}
	got := page[0].Reactions[0].PlayerIDs
	if len(got) != 2 || got[0] != "zed" || got[1] != "alice" {
		t.Fatalf("reaction order = %v, want [zed alice]", got)
	}
}
