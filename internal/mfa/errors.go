package mfa

import "errors"

var (
	ErrAlreadyEnabled   = errors.New("mfa already enabled")
	ErrNotEnabled       = errors.New("mfa not enabled")
	ErrNoPendingSecret  = errors.New("no pending mfa enrollment")
	ErrCodeVerifyFailed = errors.New("mfa code verification failed")
)
