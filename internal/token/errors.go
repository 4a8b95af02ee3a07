package token

import "errors"

// Public, stable errors for callers.  All of them are authorization
// failures: the client has to obtain a fresh token, nothing is retried.
var (
	ErrSignature       = errors.New("token signature invalid")
	ErrExpired         = errors.New("token expired")
	ErrReplay          = errors.New("token already used or unknown")
	ErrUntrustedDevice = errors.New("device not trusted for ticket")
	ErrNoSigningKey    = errors.New("no signing key available")
	ErrConfig          = errors.New("token config invalid")
)
