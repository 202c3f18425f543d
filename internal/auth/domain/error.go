package domain

import "errors"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrTokenRevoked = errors.New("token revoked")
	ErrMissingKey   = errors.New("jwt secret is not configured")
)
