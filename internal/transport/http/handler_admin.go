package httptransport

import (
	"context"
	"net/http"

	"roundtable/internal/session"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandlers struct {
	store Pinger
	host  *session.Host
}

func NewAdminHandlers(st Pinger, host *session.Host) *AdminHandlers {
	return &AdminHandlers{store: st, host: host}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up"})
	}
}

// Actors reports how many sessions this node currently hosts.
func (h *AdminHandlers) Actors() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"active": h.host.Active()})
	}
}

// Sweep runs the idle-actor janitor immediately.
func (h *AdminHandlers) Sweep() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h.host.Sweep()
		writeJSON(w, http.StatusOK, map[string]any{"active": h.host.Active()})
	}
}
