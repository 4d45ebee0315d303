package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"roundtable/internal/session"
	"roundtable/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type TokenIssuer interface {
	Issue(playerID, sessionID string) (string, time.Time, error)
}

type SessionHandlers struct {
	host   *session.Host
	tokens TokenIssuer
}

func NewSessionHandlers(host *session.Host, tokens TokenIssuer) *SessionHandlers {
	return &SessionHandlers{host: host, tokens: tokens}
}

func (h *SessionHandlers) Games() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": h.host.Deps().Games.List()})
	}
}

func (h *SessionHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := PlayerFromContext(r.Context())
		var body struct {
			GameID   string `json:"game_id"`
			TimeZone string `json:"time_zone"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		sess, err := session.Create(r.Context(), h.host.Deps(), session.CreateParams{
			CreatorID: playerID,
			GameID:    body.GameID,
			TimeZone:  body.TimeZone,
		})
		sessionsCreatedTotal.WithLabelValues(resultLabel(err)).Inc()
		if err != nil {
			h.logInternal(err, "", playerID, "create session failed")
			writeDomainError(w, err)
			return
		}
		sess.Seed = ""
		writeJSON(w, http.StatusCreated, sess)
	}
}

func (h *SessionHandlers) Invite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := PlayerFromContext(r.Context())
		sessionID := chi.URLParam(r, "session_id")
		var body struct {
			PlayerID string `json:"player_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		var member store.Member
		err := h.host.Do(r.Context(), sessionID, func(ctx context.Context, a *session.Actor) error {
			var err error
			member, err = a.Invite(ctx, playerID, strings.TrimSpace(body.PlayerID))
			return err
		})
		if err != nil {
			h.logInternal(err, sessionID, playerID, "invite failed")
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, member)
	}
}

func (h *SessionHandlers) RespondInvite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := PlayerFromContext(r.Context())
		sessionID := chi.URLParam(r, "session_id")
		var body struct {
			Accept bool `json:"accept"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		var member store.Member
		err := h.host.Do(r.Context(), sessionID, func(ctx context.Context, a *session.Actor) error {
			var err error
			member, err = a.RespondInvite(ctx, playerID, body.Accept)
			return err
		})
		if err != nil {
			h.logInternal(err, sessionID, playerID, "respond invite failed")
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	}
}

// Token issues the short-lived credential used to open the websocket or call
// MCP tools. Any current member may ask, including a pending invitee.
func (h *SessionHandlers) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := PlayerFromContext(r.Context())
		sessionID := chi.URLParam(r, "session_id")
		err := h.host.Do(r.Context(), sessionID, func(_ context.Context, a *session.Actor) error {
			m, ok := a.Snapshot().Member(playerID)
			if !ok || (m.Status != store.MemberAccepted && m.Status != store.MemberPending) {
				return session.ErrNotAMember
			}
			return nil
		})
		if err != nil {
			tokensIssuedTotal.WithLabelValues("rejected").Inc()
			h.logInternal(err, sessionID, playerID, "token membership check failed")
			writeDomainError(w, err)
			return
		}
		token, exp, err := h.tokens.Issue(playerID, sessionID)
		tokensIssuedTotal.WithLabelValues(resultLabel(err)).Inc()
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("issue token failed")
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error", "issue token failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_at": exp.UTC(),
			"session_id": sessionID,
			"player_id":  playerID,
		})
	}
}

func (h *SessionHandlers) logInternal(err error, sessionID, playerID, msg string) {
	if !session.IsInternal(err) {
		return
	}
	log.Error().Err(err).Str("session_id", sessionID).Str("player_id", playerID).Msg(msg)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
