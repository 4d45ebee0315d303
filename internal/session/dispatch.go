package session

import (
	"context"
	"encoding/json"
	"fmt"
)

type empty struct{}

// Dispatch decodes one client request and runs it against the actor. Both
// the websocket and MCP surfaces route through it.
func (a *Actor) Dispatch(ctx context.Context, playerID, typ string, data json.RawMessage) (res any, err error) {
	defer func() { observeOp(typ, err) }()

	switch typ {
	case RequestPing:
		return empty{}, nil
	case RequestSubmitTurn:
		var req SubmitTurnRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return a.SubmitTurn(ctx, playerID, req.Data)
	case RequestSendChat:
		var req SendChatRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return a.SendChat(ctx, playerID, req.Content, req.SceneID)
	case RequestToggleChatReaction:
		var req ToggleReactionRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return empty{}, a.ToggleReaction(ctx, playerID, req.MessageID, req.Reaction, req.IsOn)
	case RequestReadyUp:
		var req ReadyUpRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return empty{}, a.ReadyUp(ctx, playerID, req.Unready)
	case RequestVoteForGame:
		var req VoteForGameRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return empty{}, a.VoteForGame(ctx, playerID, req.GameID, req.Remove)
	case RequestChat:
		var req RequestChatRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return a.LoadChat(ctx, playerID, req.NextToken, req.SceneID)
	case RequestGetState:
		return a.GetState(ctx, playerID)
	case RequestGetRound:
		var req GetRoundRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return a.GetRound(ctx, playerID, req.RoundIndex)
	case RequestInvite:
		var req InviteRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return a.Invite(ctx, playerID, req.PlayerID)
	case RequestRespondInvite:
		var req RespondInviteRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return a.RespondInvite(ctx, playerID, req.Accept)
	case RequestLeave:
		return empty{}, a.Abandon(ctx, playerID)
	default:
		unknown := fmt.Errorf("%w: %s", ErrUnknownRequest, typ)
		typ = "unknown"
		return nil, unknown
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
