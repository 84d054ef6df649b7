package auth

import "errors"

// Error kinds of the authentication protocol. Credential and MFA failures
// are intentionally generic so callers cannot probe which accounts exist.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidMfaCode        = errors.New("invalid mfa code")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)
