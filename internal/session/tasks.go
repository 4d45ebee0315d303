package session

import (
	"context"
	"encoding/json"
	"fmt"

	"roundtable/internal/game"
	"roundtable/internal/scheduler"
	"roundtable/internal/store"

	"github.com/rs/zerolog/log"
)

func (a *Actor) handleRoundCheck(ctx context.Context, t scheduler.Task) error {
	if a.nextCheck != nil && roundCheckTaskID(*a.nextCheck) == t.ID {
		a.nextCheck = nil
	}
	return a.advance(ctx)
}

func (a *Actor) handleTurnReminder(ctx context.Context, t scheduler.Task) error {
	var data reminderTaskData
	if err := json.Unmarshal(t.Data, &data); err != nil {
		log.Warn().Err(err).Str("session_id", a.id).Str("task_id", t.ID).Msg("dropping malformed reminder")
		return nil
	}
	if a.snap.Session.Status != store.SessionActive {
		return nil
	}
	if err := a.advance(ctx); err != nil {
		return err
	}
	if a.round != data.RoundIndex {
		return nil
	}
	pending := pendingOrEmpty(a.decide(), data.RoundIndex)
	if len(pending) == 0 {
		return nil
	}
	return a.deps.Notifier.RemindTurn(ctx, a.id, data.RoundIndex, pending)
}

func (a *Actor) handleInviteExpiry(ctx context.Context, t scheduler.Task) error {
	var data inviteTaskData
	if err := json.Unmarshal(t.Data, &data); err != nil {
		log.Warn().Err(err).Str("session_id", a.id).Str("task_id", t.ID).Msg("dropping malformed invite expiry")
		return nil
	}
	m, ok := a.snap.Member(data.PlayerID)
	if !ok || m.Status != store.MemberPending {
		return nil
	}
	at := a.now()
	if err := a.deps.Store.UpdateMemberStatus(ctx, a.id, m.PlayerID, store.MemberExpired, at); err != nil {
		return fmt.Errorf("expire invite: %w", err)
	}
	m.Status = store.MemberExpired
	m.UpdatedAt = at
	a.apply(MemberChanged{Member: m})
	a.broadcast(NotifyMembersChange, MembersChange{Members: a.snap.Members})
	return nil
}

// ArchiveDocument is the record uploaded once a session ends.
type ArchiveDocument struct {
	Session store.Session       `json:"session"`
	Members []store.Member      `json:"members"`
	Turns   []game.Turn         `json:"turns"`
	Chat    []store.ChatMessage `json:"chat"`
}

const archiveChatPage = 500

func (a *Actor) handleArchive(ctx context.Context, _ scheduler.Task) error {
	if a.deps.Archiver == nil {
		return nil
	}
	doc, err := a.archiveDocument(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := a.deps.Archiver.Archive(ctx, a.id, body); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	log.Info().Str("session_id", a.id).Int("bytes", len(body)).Msg("session archived")
	return nil
}

func (a *Actor) archiveDocument(ctx context.Context) (ArchiveDocument, error) {
	doc := ArchiveDocument{
		Session: a.snap.Session,
		Members: a.snap.Members,
		Turns:   a.snap.Turns,
		Chat:    []store.ChatMessage{},
	}
	var cursor *store.ChatCursor
	for {
		page, next, err := a.deps.Store.ListChat(ctx, a.id, "", cursor, archiveChatPage)
		if err != nil {
			return ArchiveDocument{}, fmt.Errorf("list chat: %w", err)
		}
		doc.Chat = append(doc.Chat, page...)
		if next == "" {
			return doc, nil
		}
		if cursor, err = store.DecodeChatCursor(next); err != nil {
			return ArchiveDocument{}, err
		}
	}
}
