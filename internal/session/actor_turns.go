package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"roundtable/internal/game"
	"roundtable/internal/store"

	"github.com/rs/zerolog/log"
)

type reminderTaskData struct {
	RoundIndex int `json:"round_index"`
}

func reminderTaskID(round int) string { return fmt.Sprintf("turn_reminder:%d", round) }

// SubmitTurn validates data against the caller's view of the closed rounds and
// stores it for the current round. Resubmitting replaces the earlier turn;
// an identical payload changes nothing.
func (a *Actor) SubmitTurn(ctx context.Context, playerID string, data json.RawMessage) (TurnAccepted, error) {
	if err := a.requireMember(playerID); err != nil {
		return TurnAccepted{}, err
	}
	if err := a.requireActive(); err != nil {
		return TurnAccepted{}, err
	}
	if !json.Valid(data) {
		return TurnAccepted{}, fmt.Errorf("%w: data is not valid json", game.ErrInvalidTurn)
	}

	// Time-driven deciders may have moved on since the last wake.
	if err := a.advance(ctx); err != nil {
		return TurnAccepted{}, err
	}
	if a.snap.Finished() {
		return TurnAccepted{}, ErrSessionFinished
	}
	round := a.round

	global, err := a.cache.State(a.closedRounds())
	if err != nil {
		return TurnAccepted{}, fmt.Errorf("derive state: %w", err)
	}
	view, err := a.def.PlayerState(global, playerID)
	if err != nil {
		return TurnAccepted{}, fmt.Errorf("player state: %w", err)
	}
	if err := a.def.ValidateTurn(view, playerID, data); err != nil {
		if errors.Is(err, game.ErrInvalidTurn) || errors.Is(err, game.ErrNotYourTurn) {
			return TurnAccepted{}, err
		}
		return TurnAccepted{}, fmt.Errorf("%w: %w", game.ErrInvalidTurn, err)
	}

	stored, write, err := a.deps.Store.UpsertTurn(ctx, game.Turn{
		ID:         store.NewID(),
		SessionID:  a.id,
		PlayerID:   playerID,
		RoundIndex: round,
		Data:       data,
		CreatedAt:  a.now(),
	})
	if err != nil {
		return TurnAccepted{}, fmt.Errorf("upsert turn: %w", err)
	}
	accepted := TurnAccepted{TurnID: stored.ID, RoundIndex: round}
	if write == store.TurnUnchanged {
		accepted.Unchanged = true
		return accepted, nil
	}

	a.apply(TurnStored{Turn: stored})
	if write == store.TurnReplaced {
		a.cache.Invalidate(round)
	}
	d := a.decide()
	a.broadcast(NotifyTurnPlayed, TurnPlayed{
		PlayerID:     playerID,
		RoundIndex:   round,
		Replaced:     write == store.TurnReplaced,
		PendingTurns: pendingOrEmpty(d, round),
	})
	log.Debug().
		Str("session_id", a.id).
		Str("player_id", playerID).
		Int("round_index", round).
		Msg("turn stored")
	return accepted, a.advance(ctx)
}

// pendingOrEmpty reports who still owes a turn for round; nobody once the
// decider has moved past it.
func pendingOrEmpty(d game.RoundDecision, round int) []string {
	if d.RoundIndex != round || d.PendingTurns == nil {
		return []string{}
	}
	return d.PendingTurns
}

// advance re-runs the decider. On a new round it notifies everyone, checks
// for completion and re-arms the time-driven work for the round.
func (a *Actor) advance(ctx context.Context) error {
	if a.snap.Session.Status != store.SessionActive {
		return nil
	}
	d := a.decide()
	if d.RoundIndex > a.round {
		prev := a.round
		a.round = d.RoundIndex
		roundsAdvanced.Inc()
		log.Info().
			Str("session_id", a.id).
			Int("round_index", a.round).
			Int("previous_round_index", prev).
			Msg("round advanced")
		a.broadcast(NotifyRoundChange, RoundChange{
			RoundIndex:         a.round,
			PreviousRoundIndex: prev,
			PendingTurns:       pendingOrEmpty(d, a.round),
		})

		if prev >= 0 {
			if err := a.sched.Cancel(ctx, reminderTaskID(prev)); err != nil {
				log.Error().Err(err).Str("session_id", a.id).Msg("cancel reminder failed")
			}
		}
		done, err := a.checkCompletion(ctx)
		if err != nil || done {
			return err
		}
		if after := a.deps.Config.TurnReminderAfter; after > 0 {
			if _, err := a.sched.Schedule(ctx, a.now().Add(after), TaskTurnReminder, reminderTaskData{RoundIndex: a.round}, reminderTaskID(a.round)); err != nil {
				return err
			}
		}
	}

	if d.CheckAgainAt != nil && (a.nextCheck == nil || !a.nextCheck.Equal(*d.CheckAgainAt)) {
		at := d.CheckAgainAt.UTC()
		a.cancelRoundCheck(ctx)
		if _, err := a.sched.Schedule(ctx, at, TaskRoundCheck, nil, roundCheckTaskID(at)); err != nil {
			return err
		}
		a.nextCheck = &at
		a.broadcast(NotifyNextRoundScheduled, NextRoundScheduled{RoundIndex: a.round + 1, At: at})
	}
	return nil
}

// roundCheckTaskID is unique per boundary so a check scheduled from inside a
// running check is not deleted when the running one completes.
func roundCheckTaskID(at time.Time) string {
	return fmt.Sprintf("round_check:%d", at.Unix())
}

func (a *Actor) cancelRoundCheck(ctx context.Context) {
	if a.nextCheck == nil {
		return
	}
	id := roundCheckTaskID(*a.nextCheck)
	a.nextCheck = nil
	if err := a.sched.Cancel(ctx, id); err != nil {
		log.Error().Err(err).Str("session_id", a.id).Str("task_id", id).Msg("cancel round check failed")
	}
}

// checkCompletion asks the definition whether the closed rounds finish the
// game and, if so, records the outcome.
func (a *Actor) checkCompletion(ctx context.Context) (bool, error) {
	global, err := a.cache.State(a.closedRounds())
	if err != nil {
		return false, fmt.Errorf("derive state: %w", err)
	}
	outcome := a.def.Status(global, a.roster)
	if outcome.Status != game.StatusComplete {
		return false, nil
	}
	log.Info().
		Str("session_id", a.id).
		Strs("winner_ids", outcome.WinnerIDs).
		Int("rounds", a.round).
		Msg("session complete")
	return true, a.finish(ctx, store.SessionComplete, outcome.WinnerIDs)
}

// finish records a terminal status, drops round work and queues the archive.
func (a *Actor) finish(ctx context.Context, status string, winners []string) error {
	endedAt := a.now()
	if winners == nil {
		winners = []string{}
	}
	if err := a.deps.Store.FinishSession(ctx, a.id, status, winners, endedAt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrSessionFinished
		}
		return fmt.Errorf("finish session: %w", err)
	}
	a.apply(SessionFinished{Status: status, WinnerIDs: winners, EndedAt: endedAt})
	a.broadcast(NotifyStatusChange, StatusChange{Status: status, WinnerIDs: winners})

	a.cancelRoundCheck(ctx)
	if a.round >= 0 {
		if err := a.sched.Cancel(ctx, reminderTaskID(a.round)); err != nil {
			log.Error().Err(err).Str("session_id", a.id).Msg("cancel reminder failed")
		}
	}
	if _, err := a.sched.Schedule(ctx, endedAt, TaskArchive, nil, archiveTaskID); err != nil {
		return err
	}
	return nil
}

// GetRound renders one round for viewerID. Turns of the open round stay
// hidden according to the game's PublicTurn.
func (a *Actor) GetRound(_ context.Context, viewerID string, roundIndex int) (RoundView, error) {
	if err := a.requireMember(viewerID); err != nil {
		return RoundView{}, err
	}
	if a.def == nil {
		return RoundView{}, ErrSessionNotActive
	}
	if roundIndex < 0 || roundIndex > a.round {
		return RoundView{}, fmt.Errorf("%w: %d", ErrInvalidRound, roundIndex)
	}
	complete := roundIndex < a.round || a.snap.Finished()
	turns := a.snap.TurnsForRound(roundIndex)
	out := RoundView{RoundIndex: roundIndex, Complete: complete, Turns: make([]PublicTurn, 0, len(turns))}
	for _, t := range turns {
		out.Turns = append(out.Turns, PublicTurn{
			PlayerID:  t.PlayerID,
			CreatedAt: t.CreatedAt,
			Data:      a.def.PublicTurn(t, viewerID, complete),
		})
	}
	return out, nil
}

// GetState is what a client needs after connecting: lobby, round and its own
// view of the game.
func (a *Actor) GetState(_ context.Context, viewerID string) (StateView, error) {
	if _, ok := a.snap.Member(viewerID); !ok {
		return StateView{}, ErrNotAMember
	}
	sess := a.snap.Session
	sess.Seed = ""
	view := StateView{
		Session:     sess,
		Members:     slices.Clone(a.snap.Members),
		Ready:       slices.Clone(a.snap.Ready),
		Votes:       slices.Clone(a.snap.Votes),
		LastEventID: a.events.LastEventID(),
	}
	if a.def == nil {
		return view, nil
	}
	if sess.Status == store.SessionActive {
		d := a.decide()
		view.Round = &d
	}
	if slices.Contains(a.roster, viewerID) {
		global, err := a.cache.State(a.closedRounds())
		if err != nil {
			return StateView{}, fmt.Errorf("derive state: %w", err)
		}
		ps, err := a.def.PlayerState(global, viewerID)
		if err != nil {
			return StateView{}, fmt.Errorf("player state: %w", err)
		}
		view.PlayerState = ps
	}
	return view, nil
}
