package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Credential errors. ErrInvalidCredentials covers both an unknown email and
	// a wrong password.
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrCorruptCredentialRecord = errors.New("corrupt credential record")
	ErrEmailTaken              = errors.New("email already registered")

	// Token validation errors.
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenMalformed        = errors.New("token malformed")

	// Refresh token registry errors.
	ErrDuplicateTokenID    = errors.New("duplicate token id")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	ErrRefreshTokenReused  = errors.New("refresh token reused")
)

// IsCredentialError reports whether err should be answered with the generic
// 401 response.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrorUnauthorized) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenInvalidSignature) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrRefreshTokenRevoked) ||
		errors.Is(err, ErrRefreshTokenReused)
}
