package waitlist

import "pixelevents/internal/shared/apperr"

var (
	ErrWaitlistNotFound = apperr.New(apperr.ErrNotFound, "waitlist not found")
	ErrWaitlistExists   = apperr.New(apperr.ErrConflict, "waitlist already exists")
	ErrWaitlistClosed   = apperr.New(apperr.ErrConflict, "waitlist is closed")
	ErrDrawInProgress   = apperr.New(apperr.ErrConflict, "draw already in progress")
	ErrDrawLockLost     = apperr.New(apperr.ErrConflict, "draw lock lost")
	ErrInvalidCapacity  = apperr.New(apperr.ErrInvalidArgument, "capacity must be positive")

	ErrInvalidArgument = apperr.ErrInvalidArgument
)
