package session

import (
	"errors"
	"net/http"

	"roundtable/internal/game"
	"roundtable/internal/store"
)

var (
	ErrSessionNotFound        = errors.New("session_not_found")
	ErrNotAMember             = errors.New("not_a_member")
	ErrInviteNotYours         = errors.New("invite_not_yours")
	ErrInviteAlreadyResponded = errors.New("invite_already_responded")
	ErrDuplicateInvite        = errors.New("duplicate_invite")
	ErrSessionAlreadyStarted  = errors.New("session_already_started")
	ErrSessionNotActive       = errors.New("session_not_active")
	ErrSessionFinished        = errors.New("session_finished")
	ErrGameAlreadyChosen      = errors.New("game_already_chosen")
	ErrInvalidRound           = errors.New("invalid_round")
	ErrInvalidChat            = errors.New("invalid_chat")
	ErrMessageNotFound        = errors.New("message_not_found")
	ErrInvalidReaction        = errors.New("invalid_reaction")
	ErrInvalidTimeZone        = errors.New("invalid_time_zone")
	ErrInvalidRequest         = errors.New("invalid_request")
	ErrUnknownRequest         = errors.New("unknown_request")
	ErrSessionBusy            = errors.New("session_busy")
	ErrActorClosed            = errors.New("actor_closed")
)

// coded lists every error whose text is also its wire code, most specific
// first.
var coded = []error{
	game.ErrNotYourTurn,
	game.ErrInvalidTurn,
	game.ErrUnknownGame,
	store.ErrInvalidCursor,
	ErrSessionNotFound,
	ErrNotAMember,
	ErrInviteNotYours,
	ErrInviteAlreadyResponded,
	ErrDuplicateInvite,
	ErrSessionAlreadyStarted,
	ErrSessionNotActive,
	ErrSessionFinished,
	ErrGameAlreadyChosen,
	ErrInvalidRound,
	ErrInvalidChat,
	ErrMessageNotFound,
	ErrInvalidReaction,
	ErrInvalidTimeZone,
	ErrInvalidRequest,
	ErrUnknownRequest,
	ErrSessionBusy,
	ErrActorClosed,
}

// Error is the user-facing shape of a failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// ErrorCode classifies err. Anything unrecognised is internal_error with a
// generic message; callers log the original.
func ErrorCode(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, target := range coded {
		if errors.Is(err, target) {
			return &Error{Code: target.Error(), Message: err.Error()}
		}
	}
	return &Error{Code: "internal_error", Message: "internal error"}
}

func IsInternal(err error) bool {
	return err != nil && ErrorCode(err).Code == "internal_error"
}

func MapHTTPStatus(code string) int {
	switch code {
	case "session_not_found", "message_not_found":
		return http.StatusNotFound
	case "not_a_member", "invite_not_yours":
		return http.StatusForbidden
	case "duplicate_invite", "session_already_started", "invite_already_responded",
		"game_already_chosen", "session_busy":
		return http.StatusConflict
	case "session_not_active", "session_finished":
		return http.StatusConflict
	case "internal_error":
		return http.StatusInternalServerError
	case "actor_closed":
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
