package httptransport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"roundtable/internal/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type RouterDeps struct {
	Store    Pinger
	Host     *session.Host
	Tokens   TokenIssuer
	WS       http.HandlerFunc
	MCP      http.Handler
	AdminKey string
}

func NewRouter(d RouterDeps) *chi.Mux {
	sessions := NewSessionHandlers(d.Host, d.Tokens)
	admin := NewAdminHandlers(d.Store, d.Host)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", admin.Health())
	r.With(APILogMiddleware()).Get("/ws", d.WS)

	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", d.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/games", sessions.Games())

		r.Group(func(r chi.Router) {
			r.Use(PlayerMiddleware())
			r.Use(BodyCaptureMiddleware(4096))
			r.Post("/sessions", sessions.Create())
			r.Post("/sessions/{session_id}/invites", sessions.Invite())
			r.Post("/sessions/{session_id}/invite/respond", sessions.RespondInvite())
			r.Post("/sessions/{session_id}/token", sessions.Token())
		})

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminKey))
			r.Get("/admin/actors", admin.Actors())
			r.Post("/admin/sweep", admin.Sweep())
		})
	})

	r.With(AdminAuthMiddleware(d.AdminKey)).Handle("/metrics", promhttp.Handler())
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	fmt.Fprintf(&b, "Registered routes (%d):\n", len(routes))
	for _, rt := range routes {
		fmt.Fprintf(&b, "  %-6s %s\n", rt.Method, rt.Path)
	}
	fmt.Print(b.String())
}
