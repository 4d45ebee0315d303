// Package client is the player side of the session channel: it fetches a
// token, keeps a websocket open across drops, correlates requests with their
// responses and buffers a delayed turn until it is flushed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"roundtable/internal/session"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrTimeout      = errors.New("request_timeout")
	ErrDisconnected = errors.New("disconnected")
	ErrClosed       = errors.New("client_closed")
)

// ResponseError is a failure reported by the server for one request.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string { return e.Code + ": " + e.Message }

type Config struct {
	ServerURL string
	SessionID string
	PlayerID  string
	// RequestTimeout bounds each correlated request. Defaults to 10s.
	RequestTimeout time.Duration
	PingInterval   time.Duration
	// ReconnectFor is how long a dropped connection is retried before the
	// client gives up.
	ReconnectFor time.Duration
	// OutboxPath keeps the delayed turn in a bolt file. Ignored when Outbox
	// is set.
	OutboxPath string
	Outbox     Outbox
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.ReconnectFor <= 0 {
		c.ReconnectFor = 2 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

type Notification struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	ServerTS  int64           `json:"server_ts"`
	Data      json.RawMessage `json:"data"`
}

type frame struct {
	Notification
	ID    string         `json:"id"`
	OK    bool           `json:"ok"`
	Error *ResponseError `json:"error"`
}

type result struct {
	data json.RawMessage
	err  error
}

type Client struct {
	cfg        Config
	outbox     Outbox
	ownsOutbox bool
	notes      chan Notification

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex
	flushMu sync.Mutex

	mu          sync.Mutex
	conn        *websocket.Conn
	pending     map[string]chan result
	lastEventID string
	err         error

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the session, retrying transient failures with backoff.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.SessionID == "" || cfg.PlayerID == "" {
		return nil, fmt.Errorf("session id and player id are required")
	}
	c := &Client{
		cfg:     cfg,
		outbox:  cfg.Outbox,
		notes:   make(chan Notification, 256),
		done:    make(chan struct{}),
		pending: map[string]chan result{},
	}
	if c.outbox == nil {
		if cfg.OutboxPath != "" {
			ob, err := OpenBoltOutbox(cfg.OutboxPath)
			if err != nil {
				return nil, err
			}
			c.outbox = ob
		} else {
			c.outbox = newMemoryOutbox()
		}
		c.ownsOutbox = true
	}
	conn, err := c.connect(ctx)
	if err != nil {
		if c.ownsOutbox {
			_ = c.outbox.Close()
		}
		return nil, err
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.run(conn)
	go c.pingLoop()
	// A turn delayed by an earlier process goes out as soon as we are back.
	go c.flushInBackground()
	return c, nil
}

// Notifications delivers server notifications. It is closed when the client
// stops. Notifications are dropped when the consumer falls 256 behind.
func (c *Client) Notifications() <-chan Notification { return c.notes }

// Done is closed once the client has stopped for good.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the client stopped reconnecting.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// Request sends one correlated request and waits for its response.
func (c *Client) Request(ctx context.Context, typ string, data any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	id := uuid.NewString()
	ch := make(chan result, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := map[string]any{"id": id, "type": typ}
	if data != nil {
		req["data"] = data
	}
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.data, r.err
	case <-timer.C:
		c.forget(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) SubmitTurn(ctx context.Context, turn json.RawMessage) (json.RawMessage, error) {
	return c.Request(ctx, session.RequestSubmitTurn, map[string]any{"data": turn})
}

// DelaySubmitTurn buffers turn instead of sending it. A later call replaces
// the buffered turn; Flush or Close sends it.
func (c *Client) DelaySubmitTurn(ctx context.Context, turn json.RawMessage) error {
	if !json.Valid(turn) {
		return fmt.Errorf("delayed turn is not valid json")
	}
	return c.outbox.Put(ctx, c.outboxKey(), turn)
}

// DelayedTurn returns the buffered turn, if any.
func (c *Client) DelayedTurn(ctx context.Context) (json.RawMessage, bool, error) {
	return c.outbox.Get(ctx, c.outboxKey())
}

// Flush sends the delayed turn. A turn the server rejects is dropped; one
// that could not be delivered stays buffered.
func (c *Client) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	key := c.outboxKey()
	turn, ok, err := c.outbox.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	_, err = c.SubmitTurn(ctx, turn)
	var rejected *ResponseError
	if err != nil && !errors.As(err, &rejected) {
		return err
	}
	current, ok, gerr := c.outbox.Get(ctx, key)
	if gerr != nil {
		return gerr
	}
	// Keep a turn delayed while this one was in flight.
	if ok && bytes.Equal(current, turn) {
		if derr := c.outbox.Delete(ctx, key); derr != nil {
			return derr
		}
	}
	return err
}

// Close flushes the delayed turn and disconnects. The flush error, if any,
// is returned after the connection is gone.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		if err := c.Flush(ctx); err != nil {
			c.closeErr = fmt.Errorf("flush delayed turn: %w", err)
		}
		cancel()

		c.mu.Lock()
		c.cancel()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		<-c.done
		if c.ownsOutbox {
			if err := c.outbox.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

func (c *Client) outboxKey() string {
	return c.cfg.SessionID + "/" + c.cfg.PlayerID
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) run(conn *websocket.Conn) {
	defer close(c.done)
	defer close(c.notes)
	for {
		err := c.readLoop(conn)
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.pending {
			ch <- result{err: ErrDisconnected}
			delete(c.pending, id)
		}
		c.mu.Unlock()
		_ = conn.Close()
		if c.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).
			Str("session_id", c.cfg.SessionID).
			Str("player_id", c.cfg.PlayerID).
			Msg("session connection lost, reconnecting")

		conn, err = c.connect(c.ctx)
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			if c.ctx.Err() == nil {
				log.Error().Err(err).Str("session_id", c.cfg.SessionID).Msg("reconnect gave up")
			}
			return
		}
		c.mu.Lock()
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		go c.flushInBackground()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Type == "response" {
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if !ok {
				continue
			}
			if f.OK {
				ch <- result{data: f.Data}
			} else if f.Error != nil {
				ch <- result{err: f.Error}
			} else {
				ch <- result{err: &ResponseError{Code: "internal_error", Message: "malformed response"}}
			}
			continue
		}
		if f.EventID != "" {
			c.mu.Lock()
			c.lastEventID = f.EventID
			c.mu.Unlock()
		}
		select {
		case c.notes <- f.Notification:
		default:
			log.Warn().Str("type", f.Type).Msg("notification dropped, consumer too slow")
		}
	}
}

func (c *Client) pingLoop() {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if _, err := c.Request(c.ctx, session.RequestPing, nil); err != nil && c.ctx.Err() == nil {
				log.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}

func (c *Client) flushInBackground() {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	defer cancel()
	if err := c.Flush(ctx); err != nil && c.ctx.Err() == nil {
		log.Warn().Err(err).Str("session_id", c.cfg.SessionID).Msg("flush delayed turn failed")
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		return c.dialOnce(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(c.cfg.ReconnectFor))
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.fetchToken(ctx)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse server url: %w", err))
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{"token": {token}}
	if last := c.LastEventID(); last != "" {
		q.Set("lastEventId", last)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if rerr := decodeHTTPError(resp); rerr != nil && !retryableStatus(resp.StatusCode) {
				return nil, backoff.Permanent(rerr)
			}
		}
		return nil, fmt.Errorf("dial session channel: %w", err)
	}
	log.Info().Str("session_id", c.cfg.SessionID).Str("player_id", c.cfg.PlayerID).Msg("session connected")
	return conn, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	endpoint := strings.TrimSuffix(c.cfg.ServerURL, "/") + "/api/sessions/" + url.PathEscape(c.cfg.SessionID) + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("X-Player-ID", c.cfg.PlayerID)
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		rerr := decodeHTTPError(resp)
		if rerr == nil {
			rerr = &ResponseError{Code: "http_error", Message: resp.Status}
		}
		if retryableStatus(resp.StatusCode) {
			return "", rerr
		}
		return "", backoff.Permanent(rerr)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		return "", fmt.Errorf("decode token response: %v", err)
	}
	return body.Token, nil
}

func decodeHTTPError(resp *http.Response) *ResponseError {
	var body struct {
		Error *ResponseError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	return body.Error
}

// retryableStatus covers expired tokens, busy sessions and server trouble.
func retryableStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusConflict ||
		code == http.StatusTooManyRequests || code >= 500
}

func (c *Client) PlayerID() string { return c.cfg.PlayerID }
