package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type webhook struct {
	mu       sync.Mutex
	failures int
	bodies   []map[string]any
	headers  []http.Header
	got      chan struct{}
}

func newWebhook(failures int) (*webhook, *httptest.Server) {
	w := &webhook{failures: failures, got: make(chan struct{}, 8)}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.failures > 0 {
			w.failures--
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.bodies = append(w.bodies, body)
		w.headers = append(w.headers, r.Header.Clone())
		rw.WriteHeader(http.StatusNoContent)
		w.got <- struct{}{}
	}))
	return w, srv
}

func (w *webhook) wait(t *testing.T) {
	t.Helper()
	select {
	case <-w.got:
	case <-time.After(3 * time.Second):
		t.Fatalf("webhook not called")
	}
}

func TestDiscordReminderDelivered(t *testing.T) {
	hook, srv := newWebhook(0)
	defer srv.Close()
	p, err := New(Config{Targets: []Target{{Platform: "discord", Endpoint: srv.URL}}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Start(context.Background())
	defer p.Close()

	if err := p.RemindTurn(context.Background(), "s1", 2, []string{"alice", "bob"}); err != nil {
		t.Fatalf("remind: %v", err)
	}
	hook.wait(t)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	embeds, _ := hook.bodies[0]["embeds"].([]any)
	if len(embeds) != 1 {
		t.Fatalf("unexpected payload %v", hook.bodies[0])
	}
	embed := embeds[0].(map[string]any)
	if embed["description"] != "Round 3 is waiting on alice, bob." {
		t.Fatalf("unexpected description %v", embed["description"])
	}
}

func TestFeishuReminderRetriesWithSignature(t *testing.T) {
	hook, srv := newWebhook(2)
	defer srv.Close()
	p, err := New(Config{
		Targets:   []Target{{Platform: "feishu", Endpoint: srv.URL, Secret: "sig-1"}},
		RetryMax:  3,
		RetryBase: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.Start(context.Background())
	defer p.Close()

	_ = p.RemindTurn(context.Background(), "s1", 0, []string{"carol"})
	hook.wait(t)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if hook.bodies[0]["msg_type"] != "interactive" {
		t.Fatalf("unexpected payload %v", hook.bodies[0])
	}
	if got := hook.headers[0].Get("X-Lark-Signature"); got != "sig-1" {
		t.Fatalf("signature header = %q", got)
	}
}

func TestNewRejectsBadTargets(t *testing.T) {
	if _, err := New(Config{Targets: []Target{{Platform: "pager", Endpoint: "http://x"}}}); err == nil {
		t.Fatalf("expected unknown platform error")
	}
	if _, err := New(Config{Targets: []Target{{Platform: "discord"}}}); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
}
