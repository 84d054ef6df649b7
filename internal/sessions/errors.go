package sessions

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionRevoked   = errors.New("session revoked")
	ErrSessionExpired   = errors.New("session expired")
	ErrRotationConflict = errors.New("refresh token superseded")
)
