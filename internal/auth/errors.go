package auth

import "errors"

// Typed failures returned to callers. Store-level errors are translated at
// the adapter boundary so none of these ever wrap a raw driver error the
// caller would have to inspect.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountInactive    = errors.New("auth: account inactive")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrTenantInactive     = errors.New("auth: tenant inactive")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrConflict           = errors.New("auth: resource conflict")
	ErrNotFound           = errors.New("auth: not found")
	ErrUnavailable        = errors.New("auth: store unavailable")
)
