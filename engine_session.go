package authstate

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/MrEthical07/authstate/session"
)

// ValidateSession returns the live session for id, or nil when it does not
// exist or has expired. Expired sessions are removed as a side effect.
func (e *Engine) ValidateSession(ctx context.Context, id string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	s, ok := e.sessions.Get(id)
	if !ok {
		return nil, nil
	}
	return s, nil
}

// RefreshSession moves the session's expiry to now plus Session.Timeout and
// returns the updated copy, or nil when it is not live.
func (e *Engine) RefreshSession(ctx context.Context, id string) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	s, ok := e.sessions.Refresh(id)
	if !ok {
		return nil, nil
	}
	e.metricInc(MetricSessionRefreshed)
	return s, nil
}

// Logout removes one session. It reports false, without error, when the
// session was already gone.
func (e *Engine) Logout(ctx context.Context, id string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	s, ok := e.sessions.Remove(id)
	if !ok {
		return false, nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, s.UserID, s.Username, id, ReasonNone, nil)
	return true, nil
}

// LogoutAll removes every session of userID and returns how many were
// removed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	n := e.sessions.InvalidateUser(userID)
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", ReasonNone, func() map[string]string {
		return map[string]string{
			"sessions": strconv.Itoa(n),
		}
	})
	return n, nil
}

// ValidateCSRF compares token with the session's CSRF token in constant
// time. A missing or expired session never validates.
func (e *Engine) ValidateCSRF(ctx context.Context, id, token string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if e.sessions.ValidateCSRF(id, token) {
		return true, nil
	}

	e.metricInc(MetricCSRFFailure)
	e.emitAudit(ctx, auditEventCSRFFailure, false, "", "", id, ReasonNone, nil)
	return false, nil
}

// onSessionEvicted runs outside the store lock for every session that
// leaves the store for a reason other than Close.
func (e *Engine) onSessionEvicted(s session.Session, reason session.EvictReason) {
	switch reason {
	case session.EvictExpired:
		e.metricInc(MetricSessionExpired)
	case session.EvictCapacity:
		e.metricInc(MetricSessionEvicted)
		e.logger.Info("session evicted by per-user cap",
			slog.String("user_id", s.UserID),
			slog.String("session", s.LogID()),
		)
	case session.EvictInvalidated, session.EvictUserInvalidated:
		e.metricInc(MetricSessionInvalidated)
	}
}
