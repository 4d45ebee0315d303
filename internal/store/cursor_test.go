package store

import (
	"errors"
	"testing"
	"time"
)

func TestChatCursorRoundTrip(t *testing.T) {
	c := ChatCursor{CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC), ID: "01HX"}
	got, err := DecodeChatCursor(c.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) || got.ID != c.ID {
		t.Fatalf("got %+v want %+v", got, c)
	}
	if cur, err := DecodeChatCursor(""); cur != nil || err != nil {
		t.Fatalf("empty token = %v %v", cur, err)
	}
	if _, err := DecodeChatCursor("!!"); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("err = %v", err)
	}
}

func TestPageAndGroupReactions(t *testing.T) {
	msgs := []ChatMessage{{ID: "c"}, {ID: "b"}, {ID: "a"}}
	page, next := Page(msgs, 2)
	if len(page) != 2 || next == "" {
		t.Fatalf("page = %v next = %q", page, next)
	}
	if _, next := Page(msgs, 3); next != "" {
		t.Fatalf("unexpected next token %q", next)
	}

	grouped := GroupReactions([][3]string{{"m1", "like", "a"}, {"m1", "laugh", "b"}, {"m1", "like", "c"}})
	if len(grouped["m1"]) != 2 || len(grouped["m1"][0].PlayerIDs) != 2 {
		t.Fatalf("grouped = %+v", grouped)
	}
}
