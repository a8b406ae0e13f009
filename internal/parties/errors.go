package parties

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")

	// ErrInvalidInvitation is returned for both an unknown party and a wrong code,
	// so callers cannot tell which one failed.
	ErrInvalidInvitation = fmt.Errorf("%w: party or invitation code is invalid", ErrNotFound)
	ErrHostRemoval       = fmt.Errorf("%w: the host cannot be removed from their party", ErrInvalidOperation)
	ErrHostLeave         = fmt.Errorf("%w: the host cannot leave their party", ErrInvalidOperation)
	ErrTerminalState     = fmt.Errorf("%w: party is closed", ErrInvalidState)
	ErrStatusReserved    = fmt.Errorf("%w: status change is reserved for admins", ErrForbidden)
	ErrCodeCollision     = fmt.Errorf("%w: invitation code already in use", ErrConflict)
	ErrTooManyAttempts   = errors.New("too many failed join attempts")
)
