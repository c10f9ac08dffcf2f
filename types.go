package authstate

import (
	"context"
	"time"

	"github.com/MrEthical07/authstate/apikey"
	"github.com/MrEthical07/authstate/session"
)

// User is the view of an account the engine needs. It is owned by the
// system of record behind UserProvider.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsActive     bool
	IsAdmin      bool
}

// UserProvider looks up accounts. A missing user is reported as
// (nil, nil) or (nil, ErrUserNotFound); any other error is treated as a
// collaborator failure and returned to the caller.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// APIKeyProvider persists API key records. Only digests are ever passed
// in; the plaintext never leaves IssueAPIKey. GetAPIKeyByHash reports a
// missing key as (nil, nil). [apikey.MemoryStore] satisfies it.
type APIKeyProvider interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*apikey.Key, error)
	SaveAPIKey(ctx context.Context, key *apikey.Key) error
	RecordAPIKeyUsage(ctx context.Context, keyID string, at time.Time, ip string) error
	RevokeAPIKey(ctx context.Context, keyID string, at time.Time) error
}

// PasswordHasher is the memory-hard password primitive. [password.Argon2]
// is the default.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) (bool, error)
}

// dummyVerifier is implemented by hashers that can burn a verification's
// worth of work without a real digest.
type dummyVerifier interface {
	DummyVerify(plain string)
}

// LockoutStore is the failed-login tracker behind the engine.
// [lockout.Tracker] and [lockout.RedisTracker] satisfy it.
type LockoutStore interface {
	RecordFailure(ctx context.Context, identity string) error
	IsLocked(ctx context.Context, identity string) (bool, error)
	Failures(ctx context.Context, identity string) (int, error)
	Clear(ctx context.Context, identity string) error
}

// LoginRequest carries one password login attempt.
type LoginRequest struct {
	Username   string
	Password   string
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// FailureMessage is the only failure text ever shown to a client.
const FailureMessage = "authentication failed"

// FailureReason is the precise cause of a failed authentication. It is for
// server-side logs and audit only and must never be sent to a client.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonLocked           FailureReason = "account_locked"
	ReasonUnknownUser      FailureReason = "user_not_found"
	ReasonInactiveUser     FailureReason = "user_inactive"
	ReasonBadPassword      FailureReason = "invalid_password"
	ReasonMalformedKey     FailureReason = "malformed_api_key"
	ReasonUnknownKey       FailureReason = "api_key_not_found"
	ReasonInactiveKey      FailureReason = "api_key_inactive"
	ReasonRevokedKey       FailureReason = "api_key_revoked"
	ReasonExpiredKey       FailureReason = "api_key_expired"
	ReasonKeyOwnerInactive FailureReason = "api_key_owner_inactive"
)

// Result is the outcome of Authenticate or AuthenticateAPIKey. Expected
// failures are reported here, never as an error.
type Result struct {
	Success bool
	// Locked is set when the identity was locked before credentials were
	// checked. Callers may map it to a distinct status code.
	Locked  bool
	Message string

	User    *User
	Session *session.Session
	APIKey  *apikey.Key

	reason FailureReason
}

// Reason returns the internal failure cause.
func (r *Result) Reason() FailureReason {
	if r == nil {
		return ReasonNone
	}
	return r.reason
}

func failure(reason FailureReason) *Result {
	return &Result{
		Locked:  reason == ReasonLocked,
		Message: FailureMessage,
		reason:  reason,
	}
}

// IssuedAPIKey is returned once by IssueAPIKey. Plaintext is not stored
// anywhere and cannot be recovered.
type IssuedAPIKey struct {
	Plaintext string
	Key       *apikey.Key
}

// Stats reports current in-memory state sizes for health endpoints.
type Stats struct {
	Sessions          int
	LockoutIdentities int
	RateLimitKeys     map[string]int
	AuditDropped      uint64
	// AuditDroppedByType breaks AuditDropped down by event type.
	AuditDroppedByType map[string]uint64
	LockoutBackend     string
	RateLimitBackend   string
}
