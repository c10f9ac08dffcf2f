package session

import (
	"time"

	"github.com/MrEthical07/authstate/internal"
)

// Session is a login session. Values handed out by [Store] are copies;
// mutating them does not affect the stored record.
type Session struct {
	ID           string
	UserID       string
	Username     string
	IsAdmin      bool
	CSRFToken    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
}

// Expired reports whether now is strictly after ExpiresAt.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// LogID is a short, non-reversible identifier for log lines.
func (s *Session) LogID() string {
	return internal.Fingerprint(s.ID)
}

// CreateParams carries the inputs of [Store.Create].
type CreateParams struct {
	UserID     string
	Username   string
	IsAdmin    bool
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// EvictReason tells an eviction hook why a session left the store.
type EvictReason int

const (
	// EvictExpired is a lazy or swept expiry.
	EvictExpired EvictReason = iota
	// EvictCapacity is removal of the oldest session past the per-user cap.
	EvictCapacity
	// EvictInvalidated is an explicit single-session logout.
	EvictInvalidated
	// EvictUserInvalidated is removal by InvalidateUser.
	EvictUserInvalidated
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictCapacity:
		return "capacity"
	case EvictInvalidated:
		return "invalidated"
	case EvictUserInvalidated:
		return "user_invalidated"
	default:
		return "unknown"
	}
}
