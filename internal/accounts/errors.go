package accounts

import "errors"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrEmailRegistered  = errors.New("email already registered")
	ErrAccountDisabled  = errors.New("account disabled")
	ErrPasswordTooShort = errors.New("password too short")
)
