package server

import (
	"errors"
	"fmt"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/market"
)

// GameError is an error with a machine readable code. It renders as
// "CODE: Message" and is sent to clients as an ErrorMessage.
type GameError struct {
	Code    string
	Message string
}

func (e *GameError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches on code so wrapped or reformatted errors compare equal.
func (e *GameError) Is(target error) bool {
	var t *GameError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newGameError(code, format string, args ...any) *GameError {
	return &GameError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrGameNotFound      = &GameError{"GAME_NOT_FOUND", "Game not found"}
	ErrTeamNotFound      = &GameError{"TEAM_NOT_FOUND", "Team not found"}
	ErrNotOwner          = &GameError{"NOT_OWNER", "Only the teacher who created this game can manage it"}
	ErrNotAuthenticated  = &GameError{"NOT_AUTHENTICATED", "Sign in as a teacher first"}
	ErrNotInGame         = &GameError{"NOT_IN_GAME", "No active game session"}
	ErrTokenNotFound     = &GameError{"TOKEN_NOT_FOUND", "Invalid session token"}
	ErrInvalidCode       = &GameError{"INVALID_CODE", "Game codes are 6 characters"}
	ErrWrongPassword     = &GameError{"WRONG_PASSWORD", "Wrong password for this team"}
	ErrTeamNameInvalid   = &GameError{"TEAM_NAME_INVALID", "Team name must contain letters or digits"}
	ErrTeamNotApproved   = &GameError{"TEAM_NOT_APPROVED", "Your team has not been approved yet"}
	ErrTeamRemoved       = &GameError{"TEAM_REMOVED", "Your team is no longer in this game"}
	ErrNotTrading        = &GameError{"NOT_TRADING", "Trading is closed while the class reviews the news"}
	ErrGameFinished      = &GameError{"GAME_FINISHED", "The game has finished"}
	ErrInvalidTeamStatus = &GameError{"INVALID_TEAM_STATUS", "The team cannot move to that status"}
	ErrHeadlineRange     = &GameError{"HEADLINE_OUT_OF_RANGE", "No such headline this month"}
	ErrInvalidPayload    = &GameError{"INVALID_PAYLOAD", "Invalid request payload"}
	ErrRateLimited       = &GameError{"RATE_LIMIT_EXCEEDED", "Too many messages, slow down"}
	ErrInternal          = &GameError{"INTERNAL", "Something went wrong"}
)

// asGameError maps domain errors from the market and auth packages onto
// client facing codes.
func asGameError(err error) *GameError {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge
	}

	switch {
	case errors.Is(err, market.ErrInvalidQuantity):
		return newGameError("INVALID_QUANTITY", "Quantity must be a positive whole number")
	case errors.Is(err, market.ErrInvalidAction):
		return newGameError("INVALID_ACTION", "Action must be buy or short")
	case errors.Is(err, market.ErrUnknownCommodity):
		return newGameError("UNKNOWN_COMMODITY", "Unknown commodity")
	case errors.Is(err, market.ErrNoPrice):
		return newGameError("NO_PRICE", "This commodity has no price this month")
	case errors.Is(err, market.ErrInsufficientFunds):
		return newGameError("INSUFFICIENT_FUNDS", "Not enough cash for this purchase")
	case errors.Is(err, market.ErrInsufficientCredit):
		return newGameError("INSUFFICIENT_CREDIT", "Not enough credit for this short")
	case errors.Is(err, market.ErrInvalidFine):
		return newGameError("INVALID_FINE", "Fines must be a positive amount")
	case errors.Is(err, auth.ErrAccountPending):
		return newGameError("ACCOUNT_PENDING", "Your account is waiting for approval")
	case errors.Is(err, auth.ErrAccountRejected):
		return newGameError("ACCOUNT_REJECTED", "Your account application was rejected")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return newGameError("INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, auth.ErrDuplicateEmail):
		return newGameError("EMAIL_TAKEN", "An account with this email already exists")
	case errors.Is(err, auth.ErrAccountNotFound):
		return newGameError("ACCOUNT_NOT_FOUND", "Account not found")
	case errors.Is(err, auth.ErrExpiredToken):
		return newGameError("TOKEN_EXPIRED", "Your session has expired, sign in again")
	case errors.Is(err, auth.ErrInvalidSigningMethod),
		errors.Is(err, auth.ErrInvalidTokenSignature),
		errors.Is(err, auth.ErrCorruptedToken):
		return newGameError("INVALID_TOKEN", "Invalid session token")
	}
	return ErrInternal
}

var ErrNotTeacher = &GameError{"NOT_TEACHER", "Only approved teachers can run games"}
