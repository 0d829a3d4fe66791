package service

import "errors"

var (
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrAccountLocked             = errors.New("account locked")
	ErrInvalidToken              = errors.New("invalid token")
	ErrTokenBlacklisted          = errors.New("token revoked")
	ErrSubjectInactive           = errors.New("subject is not active")
	ErrInvalidRefreshToken       = errors.New("invalid refresh token")
	ErrRefreshTokenReuseDetected = errors.New("refresh token reuse detected")
)
