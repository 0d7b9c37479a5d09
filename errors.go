package jwtauth

import "errors"

var (
	// ErrUnauthorized is returned by Authenticate; it wraps the jwt error that caused the
	// rejection, so jwt.KindOf still classifies it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when the store has no identity for a username.
	ErrUserNotFound = errors.New("user not found")
	// ErrRefreshNotAllowed is returned by Refresh and wraps the refusal reason.
	ErrRefreshNotAllowed = errors.New("refresh not allowed")
	// ErrStoreUnavailable wraps identity store failures other than not-found.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrTokenIssue wraps failures to sign a new token.
	ErrTokenIssue = errors.New("token issue failed")
	// ErrPasswordResetUnsupported is returned when the configured store cannot record resets.
	ErrPasswordResetUnsupported = errors.New("identity store does not record password resets")
)
