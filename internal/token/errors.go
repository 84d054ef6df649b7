package token

import "errors"

var (
	ErrTokenInvalid      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token is expired")
	ErrTokenKindMismatch = errors.New("unexpected token kind")
)
