package auth

import "errors"

var (
	ErrDuplicateEmail     = errors.New("an account with this email already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountPending     = errors.New("account is waiting for admin approval")
	ErrAccountRejected    = errors.New("account application was rejected")
	ErrInvalidRole        = errors.New("invalid role")
)

var (
	ErrInvalidSigningMethod  = errors.New("invalid-signing-method")
	ErrExpiredToken          = errors.New("expired-token")
	ErrInvalidTokenSignature = errors.New("invalid-token-signature")
	ErrCorruptedToken        = errors.New("corrupted-token")
)
