package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roundtable/internal/game"
	"roundtable/internal/store"

	"github.com/rs/zerolog/log"
)

type inviteTaskData struct {
	PlayerID string `json:"player_id"`
}

func inviteTaskID(playerID string) string { return "invite_expiry:" + playerID }

// Invite adds playerID as a pending member. Only accepted members can invite
// and only before the game starts.
func (a *Actor) Invite(ctx context.Context, by, playerID string) (store.Member, error) {
	if err := a.requireMember(by); err != nil {
		return store.Member{}, err
	}
	if err := a.requirePending(); err != nil {
		return store.Member{}, err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return store.Member{}, fmt.Errorf("%w: player id is required", ErrInvalidRequest)
	}
	if _, ok := a.snap.Member(playerID); ok {
		return store.Member{}, ErrDuplicateInvite
	}
	m := store.Member{
		SessionID: a.id,
		PlayerID:  playerID,
		Status:    store.MemberPending,
		InvitedBy: by,
		CreatedAt: a.now(),
	}
	m.UpdatedAt = m.CreatedAt
	if err := a.deps.Store.InsertInvite(ctx, m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Member{}, ErrDuplicateInvite
		}
		return store.Member{}, fmt.Errorf("insert invite: %w", err)
	}
	a.apply(MemberChanged{Member: m})
	if ttl := a.deps.Config.InviteTTL; ttl > 0 {
		if _, err := a.sched.Schedule(ctx, m.CreatedAt.Add(ttl), TaskInviteExpiry, inviteTaskData{PlayerID: playerID}, inviteTaskID(playerID)); err != nil {
			log.Error().Err(err).Str("session_id", a.id).Str("player_id", playerID).Msg("schedule invite expiry failed")
		}
	}
	a.broadcast(NotifyMembersChange, MembersChange{Members: a.snap.Members})
	return m, nil
}

// RespondInvite accepts or declines the caller's own pending invite.
func (a *Actor) RespondInvite(ctx context.Context, playerID string, accept bool) (store.Member, error) {
	m, ok := a.snap.Member(playerID)
	if !ok {
		return store.Member{}, ErrInviteNotYours
	}
	if m.Status != store.MemberPending {
		return store.Member{}, ErrInviteAlreadyResponded
	}
	if err := a.requirePending(); err != nil {
		return store.Member{}, err
	}
	status := store.MemberDeclined
	if accept {
		status = store.MemberAccepted
	}
	at := a.now()
	if err := a.deps.Store.UpdateMemberStatus(ctx, a.id, playerID, status, at); err != nil {
		return store.Member{}, fmt.Errorf("update member: %w", err)
	}
	m.Status = status
	m.UpdatedAt = at
	a.apply(MemberChanged{Member: m})
	if err := a.sched.Cancel(ctx, inviteTaskID(playerID)); err != nil {
		log.Error().Err(err).Str("session_id", a.id).Str("player_id", playerID).Msg("cancel invite expiry failed")
	}
	a.broadcast(NotifyMembersChange, MembersChange{Members: a.snap.Members})
	return m, nil
}

// ReadyUp marks the caller ready (or not) and starts the game when the lobby
// is complete.
func (a *Actor) ReadyUp(ctx context.Context, playerID string, unready bool) error {
	if err := a.requireMember(playerID); err != nil {
		return err
	}
	if err := a.requirePending(); err != nil {
		return err
	}
	if a.snap.IsReady(playerID) != unready {
		return nil
	}
	if err := a.deps.Store.SetReady(ctx, a.id, playerID, !unready); err != nil {
		return fmt.Errorf("set ready: %w", err)
	}
	a.apply(ReadyChanged{PlayerID: playerID, Ready: !unready})
	if unready {
		a.broadcast(NotifyPlayerUnready, PlayerReady{PlayerID: playerID})
		return nil
	}
	a.broadcast(NotifyPlayerReady, PlayerReady{PlayerID: playerID})
	return a.maybeStart(ctx)
}

func (a *Actor) VoteForGame(ctx context.Context, playerID, gameID string, remove bool) error {
	if err := a.requireMember(playerID); err != nil {
		return err
	}
	if err := a.requirePending(); err != nil {
		return err
	}
	if a.snap.Session.GameID != "" {
		return ErrGameAlreadyChosen
	}
	def, err := a.deps.Games.Get(gameID, 0)
	if err != nil {
		return err
	}
	vote := store.Vote{PlayerID: playerID, GameID: game.NormalizeID(def.ID())}
	if err := a.deps.Store.SetVote(ctx, a.id, playerID, vote.GameID, remove); err != nil {
		return fmt.Errorf("set vote: %w", err)
	}
	a.apply(VoteChanged{Vote: vote, Remove: remove})
	a.broadcast(NotifyPlayerVoteForGame, PlayerVoteForGame{PlayerID: playerID, GameID: vote.GameID, Remove: remove})
	return a.maybeStart(ctx)
}

// chosenGame is the fixed game of the session or the current vote winner.
func (a *Actor) chosenGame() (game.Definition, bool) {
	id, version := a.snap.Session.GameID, a.snap.Session.GameVersion
	if id == "" {
		winner, ok := a.snap.VoteWinner()
		if !ok {
			return nil, false
		}
		id, version = winner, 0
	}
	def, err := a.deps.Games.Get(id, version)
	if err != nil {
		return nil, false
	}
	return def, true
}

// maybeStart moves the session to active once a game is chosen, every
// accepted member is ready and the roster fits the game.
func (a *Actor) maybeStart(ctx context.Context) error {
	if a.snap.Session.Status != store.SessionPending {
		return nil
	}
	def, ok := a.chosenGame()
	if !ok {
		return nil
	}
	roster := a.snap.Roster()
	if len(roster) < def.MinPlayers() || len(roster) > def.MaxPlayers() {
		return nil
	}
	for _, p := range roster {
		if !a.snap.IsReady(p) {
			return nil
		}
	}

	startedAt := a.now()
	gameID := game.NormalizeID(def.ID())
	if err := a.deps.Store.StartSession(ctx, a.id, gameID, def.Version(), startedAt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrSessionAlreadyStarted
		}
		return fmt.Errorf("start session: %w", err)
	}
	a.apply(SessionStarted{GameID: gameID, Version: def.Version(), StartedAt: startedAt})
	if err := a.bindGame(); err != nil {
		return err
	}
	log.Info().
		Str("session_id", a.id).
		Str("game_id", gameID).
		Int("players", len(a.roster)).
		Msg("session started")
	a.broadcast(NotifyGameStarting, GameStarting{
		GameID:    gameID,
		Version:   def.Version(),
		Players:   a.roster,
		StartedAt: startedAt,
	})
	a.broadcast(NotifyStatusChange, StatusChange{Status: store.SessionActive})
	return a.advance(ctx)
}

// Abandon ends a pending or active session on behalf of an accepted member.
func (a *Actor) Abandon(ctx context.Context, playerID string) error {
	if err := a.requireMember(playerID); err != nil {
		return err
	}
	if a.snap.Finished() {
		return ErrSessionFinished
	}
	log.Info().Str("session_id", a.id).Str("player_id", playerID).Msg("session abandoned")
	return a.finish(ctx, store.SessionAbandoned, nil)
}
