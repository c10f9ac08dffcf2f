package authstate

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine was not produced by
	// Builder.Build or has been closed.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrUserNotFound may be returned by a UserProvider for an unknown user.
	// Returning (nil, nil) means the same thing.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserProvider wraps failures of the UserProvider.
	ErrUserProvider = errors.New("user provider failure")
	// ErrAPIKeyProvider wraps failures of the APIKeyProvider.
	ErrAPIKeyProvider = errors.New("api key provider failure")
	// ErrLockoutBackend wraps failures of the lockout backend.
	ErrLockoutBackend = errors.New("lockout backend failure")
	// ErrRateLimitBackend wraps failures of the rate limit backend.
	ErrRateLimitBackend = errors.New("rate limit backend failure")
	// ErrPasswordHasher wraps failures of the password hasher.
	ErrPasswordHasher = errors.New("password hasher failure")
	// ErrSessionCreationFailed is returned when the random source fails
	// while issuing a session.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrInvalidCredentials is returned by ChangePassword for a wrong
	// current password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is returned when a new password fails the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the old one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrAPIKeyNotFound is returned by RevokeAPIKey for an unknown key.
	ErrAPIKeyNotFound = errors.New("api key not found")
	// ErrRateLimitDisabled is returned by AllowRequest when request limits
	// are turned off in config.
	ErrRateLimitDisabled = errors.New("rate limiting disabled")
)
