package app

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyTaken          = errors.New("already taken")
	ErrExpired               = errors.New("expired")
	ErrNotAMember            = errors.New("not a member of session")
	ErrDuplicateRegistration = errors.New("connection already registered")
	ErrInvalidRole           = errors.New("operation not valid for role")
)
