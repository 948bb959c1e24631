// AngelaMos | 2026
// errors.go

package call

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/whisperme/whisper-api/internal/core"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient coins for this call")
	ErrWhisperUnavailable = errors.New("whisper is not available")
	ErrWhisperOverloaded  = errors.New("whisper has too many pending calls")
	ErrSessionExpired     = errors.New("call session expired")
	ErrConflict           = errors.New("call session state conflict")
	ErrChannelJoinFailed  = errors.New("audio channel join failed")
	ErrStoreWriteFailed   = errors.New("call store write failed")
	ErrAlreadyRated       = errors.New("call already rated")
)

var domainErrors = []error{
	ErrInsufficientFunds,
	ErrWhisperUnavailable,
	ErrWhisperOverloaded,
	ErrSessionExpired,
	ErrConflict,
	ErrChannelJoinFailed,
	ErrStoreWriteFailed,
	ErrAlreadyRated,
	core.ErrNotFound,
	core.ErrForbidden,
	core.ErrInvalidInput,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapOp tags err with the operation. Anything that is not a known domain
// outcome came from the store and becomes ErrStoreWriteFailed.
func wrapOp(op string, err error) error {
	if isDomainError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreWriteFailed, err)
}

// AppError maps a Manager error onto the HTTP error envelope.
func AppError(err error) *core.AppError {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return core.NewAppError(err, "not enough coins for this call",
			http.StatusPaymentRequired, "INSUFFICIENT_FUNDS")
	case errors.Is(err, ErrWhisperUnavailable):
		return core.ConflictError("whisper is not available", "WHISPER_UNAVAILABLE")
	case errors.Is(err, ErrWhisperOverloaded):
		return core.NewAppError(err, "whisper has too many pending calls",
			http.StatusTooManyRequests, "WHISPER_OVERLOADED")
	case errors.Is(err, ErrSessionExpired):
		return core.NewAppError(err, "call request expired",
			http.StatusGone, "SESSION_EXPIRED")
	case errors.Is(err, ErrAlreadyRated):
		return core.ConflictError("call already rated", "ALREADY_RATED")
	case errors.Is(err, ErrConflict):
		return core.ConflictError("call is not in a state that allows this", "CONFLICT")
	case errors.Is(err, ErrChannelJoinFailed):
		return core.NewAppError(err, "audio channel unavailable, retry",
			http.StatusServiceUnavailable, "CHANNEL_JOIN_FAILED")
	case errors.Is(err, ErrStoreWriteFailed):
		return core.NewAppError(err, "call could not be saved, retry",
			http.StatusServiceUnavailable, "STORE_WRITE_FAILED")
	case errors.Is(err, core.ErrNotFound):
		return core.NotFoundError("call")
	case errors.Is(err, core.ErrForbidden):
		return core.ForbiddenError("not a participant of this call")
	case errors.Is(err, core.ErrInvalidInput):
		return core.NewAppError(err, err.Error(),
			http.StatusBadRequest, "INVALID_INPUT")
	}
	return core.NewAppError(err, "internal server error",
		http.StatusInternalServerError, "INTERNAL_ERROR")
}
