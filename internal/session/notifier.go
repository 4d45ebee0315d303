package session

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier reaches players outside the real-time channel (push, email).
// Delivery mechanics live behind this boundary.
type Notifier interface {
	RemindTurn(ctx context.Context, sessionID string, roundIndex int, playerIDs []string) error
}

// Archiver stores the final record of a finished session.
type Archiver interface {
	Archive(ctx context.Context, sessionID string, doc []byte) error
}

type LogNotifier struct{}

func (LogNotifier) RemindTurn(_ context.Context, sessionID string, roundIndex int, playerIDs []string) error {
	log.Info().
		Str("session_id", sessionID).
		Int("round_index", roundIndex).
		Strs("player_ids", playerIDs).
		Msg("turn reminder")
	return nil
}
