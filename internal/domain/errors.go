package domain

import "errors"

// Code is the category of a failure. Callers branch on the code, never on message text.
type Code string

const (
	CodeInvalidArgument    Code = "invalid-argument"
	CodeNotFound           Code = "not-found"
	CodeFailedPrecondition Code = "failed-precondition"
	CodePermissionDenied   Code = "permission-denied"
	CodeInternal           Code = "internal"
)

// Error is a categorised failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a categorised error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the category of err. Uncategorised errors are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

var (
	// ErrGameNotFound is returned when a game session does not exist or was cancelled.
	ErrGameNotFound = NewError(CodeNotFound, "game not found")
	// ErrPlayerNotFound is returned when a player is not part of the game.
	ErrPlayerNotFound = NewError(CodeNotFound, "player not found")
	// ErrQuizNotFound indicates the question set could not be loaded.
	ErrQuizNotFound = NewError(CodeNotFound, "quiz not found")
	// ErrQuestionNotFound indicates a question index outside the question set.
	ErrQuestionNotFound    = NewError(CodeNotFound, "question not found")
	ErrLeaderboardNotFound = NewError(CodeNotFound, "leaderboard not found")

	ErrMissingField        = NewError(CodeInvalidArgument, "missing required field")
	ErrInvalidAnswer       = NewError(CodeInvalidArgument, "invalid answer payload")
	ErrInvalidTime         = NewError(CodeInvalidArgument, "invalid time remaining")
	ErrInvalidQuestion     = NewError(CodeInvalidArgument, "invalid question configuration")
	ErrQuestionTypeInvalid = NewError(CodeInvalidArgument, "unknown question type")
	ErrDisplayNameTaken    = NewError(CodeFailedPrecondition, "display name already taken")
	ErrPINTaken            = NewError(CodeFailedPrecondition, "pin already in use")

	// ErrWrongState is returned when an operation does not apply to the game's current lifecycle state.
	ErrWrongState = NewError(CodeFailedPrecondition, "game is not in the required state")
	// ErrStaleQuestion is returned when a submission targets a question other than the current one.
	ErrStaleQuestion = NewError(CodeFailedPrecondition, "question is no longer active")
	// ErrAlreadyAnswered is returned when the player already has an answer record for the question.
	ErrAlreadyAnswered = NewError(CodeFailedPrecondition, "question already answered")
	ErrNotHost         = NewError(CodePermissionDenied, "only the host can control this game")

	// ErrConflict signals that an optimistic transaction lost a race and may be retried.
	ErrConflict = NewError(CodeInternal, "concurrent update conflict")
)
