// Package ws is the real-time channel: one websocket per (player, session)
// carrying correlated requests one way and notifications the other.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"roundtable/internal/auth"
	"roundtable/internal/session"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
	requestTimeout = 15 * time.Second
)

// TokenVerifier resolves the token passed on the upgrade request.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

type Server struct {
	host     *session.Host
	tokens   TokenVerifier
	upgrader websocket.Upgrader
}

func NewServer(host *session.Host, tokens TokenVerifier) *Server {
	return &Server{
		host:   host,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	sub       *session.Subscription
	sessionID string
	playerID  string
}

// HandleWS authenticates ?token=, subscribes to the session and upgrades.
// ?lastEventId= replays notifications missed since a previous connection.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		connectionsTotal.WithLabelValues("unauthorized").Inc()
		writeHTTPError(w, http.StatusUnauthorized, &session.Error{Code: "invalid_token", Message: err.Error()})
		return
	}
	sub, err := s.host.Subscribe(r.Context(), claims.SessionID, claims.PlayerID(), r.URL.Query().Get("lastEventId"))
	if err != nil {
		e := session.ErrorCode(err)
		if e.Code == "internal_error" {
			log.Error().Err(err).Str("session_id", claims.SessionID).Msg("ws subscribe failed")
		}
		connectionsTotal.WithLabelValues(e.Code).Inc()
		writeHTTPError(w, session.MapHTTPStatus(e.Code), e)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		connectionsTotal.WithLabelValues("upgrade_failed").Inc()
		return
	}
	connectionsTotal.WithLabelValues("ok").Inc()
	connectionsActive.Inc()

	c := &client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sub:       sub,
		sessionID: claims.SessionID,
		playerID:  claims.PlayerID(),
	}
	log.Info().Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("ws connected")

	done := make(chan struct{})
	go s.writeLoop(c, done)
	s.readLoop(c)
	close(done)
}

func (s *Server) readLoop(c *client) {
	defer func() {
		c.sub.Close()
		_ = c.conn.Close()
		connectionsActive.Dec()
		log.Info().Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("ws disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session_id", c.sessionID).Msg("ws read failed")
			}
			return
		}
		resp := s.handleRequest(c, msg)
		if !c.enqueue(resp) {
			return
		}
	}
}

func (s *Server) handleRequest(c *client, msg []byte) Response {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return errorResponse("", &session.Error{Code: "invalid_request", Message: "malformed json"})
	}
	if !validRequestID(req.ID) {
		return errorResponse(req.ID, &session.Error{Code: "invalid_request_id", Message: "id is required and at most 64 characters"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var res any
	err := s.host.Do(ctx, c.sessionID, func(ctx context.Context, a *session.Actor) error {
		var err error
		res, err = a.Dispatch(ctx, c.playerID, req.Type, req.Data)
		return err
	})
	if err != nil {
		e := session.ErrorCode(err)
		if e.Code == "internal_error" {
			log.Error().Err(err).
				Str("session_id", c.sessionID).
				Str("player_id", c.playerID).
				Str("request_type", req.Type).
				Msg("ws request failed")
		}
		return errorResponse(req.ID, e)
	}
	return okResponse(req.ID, res)
}

// enqueue hands a message to the write loop. A client that cannot keep up
// is disconnected; it will reconnect and replay.
func (c *client) enqueue(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("session_id", c.sessionID).Msg("ws marshal failed")
		return true
	}
	select {
	case c.send <- b:
		return true
	default:
		log.Warn().Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("ws send buffer full, closing")
		return false
	}
}

func (s *Server) writeLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	if c.sub.Resync {
		resyncsTotal.Inc()
		if !c.write(session.Notification{Type: session.NotifyResync, SessionID: c.sessionID, ServerTS: time.Now().UnixMilli()}) {
			return
		}
	}
	for _, n := range c.sub.Replay {
		if !c.write(n) {
			return
		}
	}

	for {
		select {
		case msg := <-c.send:
			if !c.writeRaw(msg) {
				return
			}
		case n, ok := <-c.sub.C:
			if !ok {
				// The actor went away; the client reconnects and resyncs.
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseServiceRestart, "session moved"))
				return
			}
			if !c.write(n) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *client) write(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("session_id", c.sessionID).Msg("ws marshal failed")
		return true
	}
	return c.writeRaw(b)
}

func (c *client) writeRaw(b []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b) == nil
}

func writeHTTPError(w http.ResponseWriter, status int, e *session.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": e})
}
