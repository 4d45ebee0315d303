package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"roundtable/internal/store"
)

func TestDispatchRoutesRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.create(t, "alice", "highcard")
	a, _ := env.load(t, sess.ID)

	if _, err := a.Dispatch(ctx, "alice", RequestPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	res, err := a.Dispatch(ctx, "alice", RequestInvite, json.RawMessage(`{"playerId":"bob"}`))
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if m, ok := res.(store.Member); !ok || m.PlayerID != "bob" {
		t.Fatalf("unexpected invite result %#v", res)
	}
	if _, err := a.Dispatch(ctx, "bob", RequestRespondInvite, json.RawMessage(`{"accept":true}`)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	for _, p := range []string{"alice", "bob"} {
		if _, err := a.Dispatch(ctx, p, RequestReadyUp, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("ready %s: %v", p, err)
		}
	}

	res, err = a.Dispatch(ctx, "alice", RequestGetState, nil)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	state := res.(StateView)
	if state.Session.Status != store.SessionActive || state.Session.Seed != "" || state.Round == nil {
		t.Fatalf("unexpected state %+v", state)
	}

	h := hand(t, a, "alice")
	data, _ := json.Marshal(map[string]any{"data": map[string]string{"card": h[0]}})
	res, err = a.Dispatch(ctx, "alice", RequestSubmitTurn, data)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if acc := res.(TurnAccepted); acc.RoundIndex != 0 || acc.TurnID == "" {
		t.Fatalf("unexpected accept %+v", acc)
	}

	res, err = a.Dispatch(ctx, "bob", RequestSendChat, json.RawMessage(`{"content":"gl"}`))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	msg := res.(store.ChatMessage)
	react, _ := json.Marshal(map[string]any{"messageId": msg.ID, "reaction": "🔥", "isOn": true})
	if _, err := a.Dispatch(ctx, "alice", RequestToggleChatReaction, react); err != nil {
		t.Fatalf("react: %v", err)
	}
	res, err = a.Dispatch(ctx, "alice", RequestChat, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("request chat: %v", err)
	}
	if page := res.(ChatPage); len(page.Messages) != 1 {
		t.Fatalf("unexpected chat page %+v", page)
	}
	res, err = a.Dispatch(ctx, "bob", RequestGetRound, json.RawMessage(`{"roundIndex":0}`))
	if err != nil {
		t.Fatalf("get round: %v", err)
	}
	if rv := res.(RoundView); len(rv.Turns) != 1 || rv.Complete {
		t.Fatalf("unexpected round %+v", rv)
	}
}

func TestDispatchRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.create(t, "alice", "")
	a, _ := env.load(t, sess.ID)

	if _, err := a.Dispatch(ctx, "alice", "launchMissiles", nil); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected unknown_request, got %v", err)
	}
	if _, err := a.Dispatch(ctx, "alice", RequestVoteForGame, json.RawMessage(`{"gameId":`)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	if _, err := a.Dispatch(ctx, "alice", RequestGetRound, json.RawMessage(`{"roundIndex":0}`)); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected session_not_active before start, got %v", err)
	}
	if _, err := a.Dispatch(ctx, "alice", RequestVoteForGame, json.RawMessage(`{"gameId":"highcard"}`)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := a.Dispatch(ctx, "alice", RequestLeave, nil); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if a.Snapshot().Session.Status != store.SessionAbandoned {
		t.Fatalf("expected abandoned session")
	}
}
