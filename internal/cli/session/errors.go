package session

import (
	"errors"
	"fmt"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrIdentityFetch  = errors.New("failed to fetch current user")
	ErrAccessDenied   = errors.New("access denied")
	ErrStaleLogin     = errors.New("login result discarded: session changed")
	ErrInvalidPolicy  = errors.New("invalid route policy")
)

// EndedError aborts a request whose session was just terminated by the
// guard. It is terminal: retrying cannot succeed without a new login.
type EndedError struct {
	Reason     error
	RedirectTo string
}

func (e *EndedError) Error() string {
	return fmt.Sprintf("session ended: %v (redirect to %s)", e.Reason, e.RedirectTo)
}

func (e *EndedError) Unwrap() error {
	return e.Reason
}
