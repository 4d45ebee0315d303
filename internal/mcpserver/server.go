// Package mcpserver exposes session play to AI agents as MCP tools. Every
// tool takes the session token issued to the player and routes through the
// same actor operations as the websocket channel.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"roundtable/internal/auth"
	"roundtable/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

type Server struct {
	host   *session.Host
	tokens TokenVerifier

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(host *session.Host, tokens TokenVerifier) *Server {
	mcpSrv := server.NewMCPServer(
		"roundtable",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s := &Server{
		host:       host,
		tokens:     tokens,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerTools()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

// dispatch authenticates token and runs one protocol request for its player.
func (s *Server) dispatch(ctx context.Context, token, typ string, data any) *mcp.CallToolResult {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return toolError("invalid_token", err.Error())
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return toolError("invalid_request", err.Error())
	}
	var res any
	err = s.host.Do(ctx, claims.SessionID, func(ctx context.Context, a *session.Actor) error {
		var err error
		res, err = a.Dispatch(ctx, claims.PlayerID(), typ, raw)
		return err
	})
	if err != nil {
		if session.IsInternal(err) {
			log.Error().Err(err).
				Str("session_id", claims.SessionID).
				Str("player_id", claims.PlayerID()).
				Str("request_type", typ).
				Msg("mcp tool failed")
		}
		return domainError(err)
	}
	return toolResult(res)
}
