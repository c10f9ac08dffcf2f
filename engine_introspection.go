package authstate

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authstate/session"
)

// SessionInfo is the safe introspection view for a session. SessionID is a
// fingerprint; the session id and CSRF token are never included.
type SessionInfo struct {
	SessionID    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
}

// HealthStatus is an on-demand health result. Redis fields are zero when
// the engine runs on in-memory backends only.
type HealthStatus struct {
	Ready           bool
	RedisConfigured bool
	RedisAvailable  bool
	RedisLatency    time.Duration
}

// GetActiveSessionCount returns the number of live sessions of userID.
func (e *Engine) GetActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.sessions.UserCount(userID), nil
}

// ListActiveSessions returns the live sessions of userID, oldest first.
func (e *Engine) ListActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sessions := e.sessions.ListUser(userID)
	out := make([]SessionInfo, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionInfo(&sessions[i]))
	}
	return out, nil
}

func (e *Engine) Health(ctx context.Context) HealthStatus {
	ready := e.ready() == nil
	if !ready || e.redis == nil {
		return HealthStatus{Ready: ready}
	}

	start := time.Now()
	err := e.redis.Ping(ctx).Err()
	return HealthStatus{
		Ready:           true,
		RedisConfigured: true,
		RedisAvailable:  err == nil,
		RedisLatency:    time.Since(start),
	}
}

// GetLoginAttempts returns the failures currently counted against
// identifier.
func (e *Engine) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if identifier == "" {
		return 0, nil
	}
	n, err := e.lockout.Failures(ctx, identifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLockoutBackend, err)
	}
	return n, nil
}

func toSessionInfo(s *session.Session) SessionInfo {
	return SessionInfo{
		SessionID:    s.LogID(),
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		LastActivity: s.LastActivity,
		IPAddress:    s.IPAddress,
		UserAgent:    s.UserAgent,
	}
}
