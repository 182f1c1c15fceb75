package auth

import (
	"errors"
	"fmt"
)

// Failure taxonomy surfaced to callers. Credential, token and session
// failures collapse into ErrUnauthenticated; the distinct causes are logged
// internally but never distinguished to the caller.
var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrConflict        = errors.New("auth: already exists")
	ErrNotFound        = errors.New("auth: not found")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrInternal        = errors.New("auth: internal error")
)

// ErrAccountInactive is the one observed exception to the uniform
// unauthenticated message: the login path reports inactive accounts with a
// distinguishable detail. It still matches errors.Is(err, ErrUnauthenticated).
var ErrAccountInactive = fmt.Errorf("%w: account inactive", ErrUnauthenticated)
