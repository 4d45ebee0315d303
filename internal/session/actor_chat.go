package session

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"roundtable/internal/store"

	"golang.org/x/text/unicode/norm"
)

// SendChat appends a message. Content is trimmed and NFC-normalised so
// visually identical messages compare equal.
func (a *Actor) SendChat(ctx context.Context, playerID, content, sceneID string) (store.ChatMessage, error) {
	if err := a.requireMember(playerID); err != nil {
		return store.ChatMessage{}, err
	}
	content = norm.NFC.String(strings.TrimSpace(content))
	if content == "" {
		return store.ChatMessage{}, fmt.Errorf("%w: empty message", ErrInvalidChat)
	}
	if utf8.RuneCountInString(content) > maxChatRunes {
		return store.ChatMessage{}, fmt.Errorf("%w: message longer than %d characters", ErrInvalidChat, maxChatRunes)
	}
	m := store.ChatMessage{
		ID:         store.NewID(),
		SessionID:  a.id,
		AuthorID:   playerID,
		Content:    content,
		RoundIndex: max(a.round, 0),
		SceneID:    strings.TrimSpace(sceneID),
		CreatedAt:  a.now(),
		Reactions:  []store.Reaction{},
	}
	if err := a.deps.Store.InsertChat(ctx, m); err != nil {
		return store.ChatMessage{}, fmt.Errorf("insert chat: %w", err)
	}
	a.broadcast(NotifyChat, m)
	return m, nil
}

// LoadChat pages backwards through history, newest first.
func (a *Actor) LoadChat(ctx context.Context, playerID, nextToken, sceneID string) (ChatPage, error) {
	if _, ok := a.snap.Member(playerID); !ok {
		return ChatPage{}, ErrNotAMember
	}
	cursor, err := store.DecodeChatCursor(nextToken)
	if err != nil {
		return ChatPage{}, err
	}
	msgs, next, err := a.deps.Store.ListChat(ctx, a.id, strings.TrimSpace(sceneID), cursor, chatPageSize)
	if err != nil {
		return ChatPage{}, fmt.Errorf("list chat: %w", err)
	}
	return ChatPage{Messages: msgs, NextToken: next}, nil
}

// ToggleReaction sets or clears (message, player, reaction). Setting a
// reaction twice is not a change and is not broadcast.
func (a *Actor) ToggleReaction(ctx context.Context, playerID, messageID, reaction string, on bool) error {
	if err := a.requireMember(playerID); err != nil {
		return err
	}
	reaction = norm.NFC.String(strings.TrimSpace(reaction))
	if reaction == "" || utf8.RuneCountInString(reaction) > maxReactionLength {
		return ErrInvalidReaction
	}
	ok, err := a.deps.Store.ChatMessageExists(ctx, a.id, messageID)
	if err != nil {
		return fmt.Errorf("lookup message: %w", err)
	}
	if !ok {
		return ErrMessageNotFound
	}
	changed, err := a.deps.Store.SetReaction(ctx, messageID, playerID, reaction, on, a.now())
	if err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	if changed {
		a.broadcast(NotifyChatReaction, ChatReaction{MessageID: messageID, PlayerID: playerID, Reaction: reaction, IsOn: on})
	}
	return nil
}
