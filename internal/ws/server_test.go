package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roundtable/internal/auth"
	"roundtable/internal/game"
	"roundtable/internal/games/highcard"
	"roundtable/internal/session"
	"roundtable/internal/store/sqlite"

	"github.com/gorilla/websocket"
)

type fixture struct {
	host   *session.Host
	tokens *auth.Issuer
	srv    *httptest.Server
	sessID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "ws.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	games, err := game.NewRegistry(highcard.New())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	deps := session.Deps{Store: st, Games: games}
	host := session.NewHost(deps, session.HostOptions{NodeID: "test"})
	t.Cleanup(host.Shutdown)
	tokens, err := auth.NewIssuer("secret", time.Minute, nil)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	sess, err := session.Create(context.Background(), host.Deps(), session.CreateParams{CreatorID: "alice", GameID: "highcard"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(NewServer(host, tokens).HandleWS))
	t.Cleanup(srv.Close)
	return &fixture{host: host, tokens: tokens, srv: srv, sessID: sess.ID}
}

func (f *fixture) dial(t *testing.T, playerID, lastEventID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, _, err := f.tokens.Issue(playerID, f.sessID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	q := url.Values{"token": {token}}
	if lastEventID != "" {
		q.Set("lastEventId", lastEventID)
	}
	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?" + q.Encode()
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	EventID string          `json:"event_id"`
	Data    json.RawMessage `json:"data"`
	Error   *session.Error  `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func request(t *testing.T, conn *websocket.Conn, id, typ string, data any) frame {
	t.Helper()
	req := map[string]any{"id": id, "type": typ}
	if data != nil {
		req["data"] = data
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		f := readFrame(t, conn)
		if f.Type == TypeResponse {
			return f
		}
	}
}

func TestHandshakeRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake failure, got err=%v resp=%v", err, resp)
	}

	_, resp, err = f.dial(t, "mallory", "")
	if err == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got err=%v", err)
	}
}

func TestRequestsAreCorrelated(t *testing.T) {
	f := newFixture(t)
	conn, _, err := f.dial(t, "alice", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if got := request(t, conn, "r1", session.RequestPing, nil); !got.OK || got.ID != "r1" {
		t.Fatalf("unexpected ping response %+v", got)
	}

	got := request(t, conn, "r2", session.RequestGetState, nil)
	var state session.StateView
	if err := json.Unmarshal(got.Data, &state); err != nil || !got.OK {
		t.Fatalf("get state: %+v err=%v", got, err)
	}
	if state.Session.ID != f.sessID || len(state.Members) != 1 {
		t.Fatalf("unexpected state %+v", state)
	}

	got = request(t, conn, "r3", session.RequestSubmitTurn, map[string]any{"data": map[string]string{"card": "AS"}})
	if got.OK || got.Error == nil || got.Error.Code != "session_not_active" {
		t.Fatalf("expected session_not_active, got %+v", got)
	}

	got = request(t, conn, strings.Repeat("x", 65), session.RequestPing, nil)
	if got.OK || got.Error.Code != "invalid_request_id" {
		t.Fatalf("expected invalid_request_id, got %+v", got)
	}
	got = request(t, conn, "", session.RequestPing, nil)
	if got.OK || got.Error.Code != "invalid_request_id" {
		t.Fatalf("expected invalid_request_id for empty id, got %+v", got)
	}
	got = request(t, conn, "r4", "fly", nil)
	if got.OK || got.Error.Code != "unknown_request" || got.ID != "r4" {
		t.Fatalf("expected unknown_request, got %+v", got)
	}
}

func TestNotificationsAndReplay(t *testing.T) {
	f := newFixture(t)
	conn, _, err := f.dial(t, "alice", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.WriteJSON(Request{ID: "r1", Type: session.RequestInvite, Data: json.RawMessage(`{"playerId":"bob"}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The response and the notification travel on separate queues, so
	// either may arrive first.
	var n frame
	for i := 0; i < 2; i++ {
		fr := readFrame(t, conn)
		switch fr.Type {
		case TypeResponse:
			if !fr.OK || fr.ID != "r1" {
				t.Fatalf("invite: %+v", fr)
			}
		default:
			n = fr
		}
	}
	if n.Type != session.NotifyMembersChange || n.EventID == "" {
		t.Fatalf("expected membersChange notification, got %+v", n)
	}
	_ = conn.Close()

	err = f.host.Do(context.Background(), f.sessID, func(ctx context.Context, a *session.Actor) error {
		_, err := a.SendChat(ctx, "alice", "while you were away", "")
		return err
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	again, _, err := f.dial(t, "alice", n.EventID)
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	if replay := readFrame(t, again); replay.Type != session.NotifyChat {
		t.Fatalf("expected replayed chat, got %+v", replay)
	}

	stale, _, err := f.dial(t, "alice", "gone.epoch-1")
	if err != nil {
		t.Fatalf("stale dial: %v", err)
	}
	if first := readFrame(t, stale); first.Type != session.NotifyResync {
		t.Fatalf("expected resync, got %+v", first)
	}
}
