package session

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomClosed      = errors.New("room closed")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNotMember      = fmt.Errorf("%w: not a room member", ErrForbidden)
	ErrEmptyMessage   = fmt.Errorf("%w: empty message", ErrInvalidArgument)
	ErrMessageTooLong = fmt.Errorf("%w: message too long", ErrInvalidArgument)

	// ErrCodeGenerationExhausted means every generated room code collided
	// up to the retry cap. Operationally anomalous.
	ErrCodeGenerationExhausted = errors.New("room code generation exhausted")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeErr translates repository failures: a missing row is NotFound,
// anything else is a store outage surfaced as-is to be retried by the
// user, never silently dropped.
func storeErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}

	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
