package mcpserver

import (
	"context"

	"roundtable/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
)

func tokenArg() mcp.ToolOption {
	return mcp.WithString("token", mcp.Required(), mcp.Description("Session token from POST /api/sessions/{session_id}/token"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_session_state",
			mcp.WithDescription("Lobby, current round and the caller's view of the game."),
			tokenArg(),
		),
		s.handleGetState,
	)
	s.mcpServer.AddTool(
		mcp.NewTool(
			"submit_turn",
			mcp.WithDescription("Submit or replace the caller's turn for the current round."),
			tokenArg(),
			mcp.WithObject("turn", mcp.Required(), mcp.Description("Game specific turn payload, e.g. {\"card\":\"AS\"}")),
		),
		s.handleSubmitTurn,
	)
	s.mcpServer.AddTool(
		mcp.NewTool(
			"send_chat",
			mcp.WithDescription("Post a chat message to the session."),
			tokenArg(),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
			mcp.WithString("scene_id", mcp.Description("Optional scene")),
		),
		s.handleSendChat,
	)
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_round",
			mcp.WithDescription("Turns of one round as the caller may see them."),
			tokenArg(),
			mcp.WithNumber("round_index", mcp.Required(), mcp.Description("Zero-based round index")),
		),
		s.handleGetRound,
	)
	s.mcpServer.AddTool(
		mcp.NewTool(
			"ready_up",
			mcp.WithDescription("Mark the caller ready in the lobby; the game starts once everyone is."),
			tokenArg(),
			mcp.WithBoolean("unready", mcp.Description("Withdraw readiness instead")),
		),
		s.handleReadyUp,
	)
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	return s.dispatch(ctx, token, session.RequestGetState, struct{}{}), nil
}

func (s *Server) handleSubmitTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	turn, ok := request.GetArguments()["turn"]
	if !ok || turn == nil {
		return toolError("invalid_request", "turn is required"), nil
	}
	return s.dispatch(ctx, token, session.RequestSubmitTurn, map[string]any{"data": turn}), nil
}

func (s *Server) handleSendChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	return s.dispatch(ctx, token, session.RequestSendChat, session.SendChatRequest{
		Content: content,
		SceneID: request.GetString("scene_id", ""),
	}), nil
}

func (s *Server) handleGetRound(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	idx, err := request.RequireInt("round_index")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	return s.dispatch(ctx, token, session.RequestGetRound, session.GetRoundRequest{RoundIndex: idx}), nil
}

func (s *Server) handleReadyUp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	return s.dispatch(ctx, token, session.RequestReadyUp, session.ReadyUpRequest{
		Unready: request.GetBool("unready", false),
	}), nil
}
