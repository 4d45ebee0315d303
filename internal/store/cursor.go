package store

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid_cursor")

// ChatCursor marks the oldest message of a page; the next page starts
// strictly before it.
type ChatCursor struct {
	CreatedAt time.Time
	ID        string
}

func (c ChatCursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeChatCursor(token string) (*ChatCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	micros, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	us, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &ChatCursor{CreatedAt: time.UnixMicro(us).UTC(), ID: id}, nil
}

// Page trims a limit+1 result to limit and returns the cursor for the next
// page, empty when there is none.
func Page(msgs []ChatMessage, limit int) ([]ChatMessage, string) {
	if len(msgs) <= limit {
		return msgs, ""
	}
	msgs = msgs[:limit]
	last := msgs[len(msgs)-1]
	return msgs, ChatCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
}

// GroupReactions folds (message, kind, player) rows into per-message
// reaction lists, preserving first-seen kind order.
func GroupReactions(rows [][3]string) map[string][]Reaction {
	out := map[string][]Reaction{}
	for _, r := range rows {
		msgID, kind, player := r[0], r[1], r[2]
		list := out[msgID]
		found := false
		for i := range list {
			if list[i].Kind == kind {
				list[i].PlayerIDs = append(list[i].PlayerIDs, player)
				found = true
				break
			}
		}
		if !found {
			list = append(list, Reaction{Kind: kind, PlayerIDs: []string{player}})
		}
		out[msgID] = list
	}
	return out
}
